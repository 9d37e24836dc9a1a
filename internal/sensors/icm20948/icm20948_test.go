package icm20948

import (
	"errors"
	"testing"
	"time"
)

type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp

	// Optional overrides.
	readErrFor map[byte]error
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	if err := f.readErrFor[reg]; err != nil {
		return 0, err
	}
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if err := f.readErrFor[reg]; err != nil {
		return err
	}
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func (f *fakeI2C) wrote(reg, val byte) bool {
	for _, w := range f.writes {
		if w.reg == reg && w.val == val {
			return true
		}
	}
	return false
}

func noSleep(t *testing.T) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })
}

func newFakeMag() *fakeI2C {
	return &fakeI2C{regs: map[byte][]byte{magRegWIA2: {magWIA2Val}}}
}

func TestNew_WhoAmIMismatch(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {0x00}}}
	if _, err := newWithIO(f, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNew_WritesExpectedInitRegisters(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d, err := newWithIO(f, nil)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	if d.HasMag() {
		t.Fatalf("expected no magnetometer")
	}
	if !f.wrote(regPwrMgmt1, bitReset) {
		t.Fatalf("expected reset write to PWR_MGMT_1")
	}
	if !f.wrote(regPwrMgmt1, 0x01) {
		t.Fatalf("expected wake write to PWR_MGMT_1")
	}
	if !f.wrote(regBankSel, bank2<<4) {
		t.Fatalf("expected bank2 select write")
	}
	if !f.wrote(regAccelConfig, fsAccel4g) {
		t.Fatalf("expected accel full-scale write")
	}
	if f.wrote(regIntPinCfg, bitBypassEn) {
		t.Fatalf("bypass enabled without magnetometer")
	}
}

func TestNew_EnablesBypassForMagnetometer(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	m := newFakeMag()
	d, err := newWithIO(f, m)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	if !d.HasMag() {
		t.Fatalf("expected magnetometer")
	}
	if !f.wrote(regUserCtrl, 0x00) || !f.wrote(regIntPinCfg, bitBypassEn) {
		t.Fatalf("expected i2c master off + bypass on, writes=%v", f.writes)
	}
	if !m.wrote(magRegCNTL3, magSoftRst) || !m.wrote(magRegCNTL2, magCont100) {
		t.Fatalf("expected ak09916 reset + continuous mode, writes=%v", m.writes)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !m.wrote(magRegCNTL2, 0x00) {
		t.Fatalf("expected power-down on close")
	}
}

func TestNew_MagnetometerWhoAmIMismatch(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	m := &fakeI2C{regs: map[byte][]byte{magRegWIA2: {0x48}}}
	if _, err := newWithIO(f, m); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRead_ScalesAccelAndGyro(t *testing.T) {
	noSleep(t)

	// ax=16384 -> 2g when full-scale=4g (4/32768)
	// gx=16384 -> 125 dps when full-scale=250dps (250/32768)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	f.regs[regAccelXoutH] = []byte{
		0x40, 0x00, // ax
		0x00, 0x00, // ay
		0xC0, 0x00, // az = -16384 -> -2g
		0x40, 0x00, // gx
		0x00, 0x00, // gy
		0xC0, 0x00, // gz = -16384 -> -125 dps
	}

	d, err := newWithIO(f, nil)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	s, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if s.Ax < 1.99 || s.Ax > 2.01 {
		t.Fatalf("Ax=%v want ~2.0", s.Ax)
	}
	if s.Az > -1.99 || s.Az < -2.01 {
		t.Fatalf("Az=%v want ~-2.0", s.Az)
	}
	if s.Gx < 124.9 || s.Gx > 125.1 {
		t.Fatalf("Gx=%v want ~125", s.Gx)
	}
	if s.Gz > -124.9 || s.Gz < -125.1 {
		t.Fatalf("Gz=%v want ~-125", s.Gz)
	}
}

func TestReadMag_ScalesAndRemapsAxes(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	m := newFakeMag()
	d, err := newWithIO(f, m)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	m.regs[magRegST1] = []byte{0x00}
	if _, ready, err := d.ReadMag(); err != nil || ready {
		t.Fatalf("ready=%v err=%v want not ready", ready, err)
	}

	// hx=100, hy=-200, hz=300 little-endian; 0.15 uT/LSB.
	m.regs[magRegST1] = []byte{magBitDRDY}
	m.regs[magRegHXL] = []byte{0x64, 0x00, 0x38, 0xFF, 0x2C, 0x01, 0x00, 0x00}
	s, ready, err := d.ReadMag()
	if err != nil || !ready {
		t.Fatalf("ready=%v err=%v", ready, err)
	}
	if s.Mx < 14.99 || s.Mx > 15.01 {
		t.Fatalf("Mx=%v want 15", s.Mx)
	}
	if s.My < 29.99 || s.My > 30.01 {
		t.Fatalf("My=%v want 30 (inverted)", s.My)
	}
	if s.Mz > -44.99 || s.Mz < -45.01 {
		t.Fatalf("Mz=%v want -45 (inverted)", s.Mz)
	}
}

func TestReadMag_Overflow(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	m := newFakeMag()
	d, err := newWithIO(f, m)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	m.regs[magRegST1] = []byte{magBitDRDY}
	m.regs[magRegHXL] = []byte{0, 0, 0, 0, 0, 0, 0, magBitHOFL}
	if _, _, err := d.ReadMag(); !errors.Is(err, ErrMagOverflow) {
		t.Fatalf("err=%v want ErrMagOverflow", err)
	}
}

func TestReadMag_WithoutMagnetometer(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d, err := newWithIO(f, nil)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	if _, _, err := d.ReadMag(); err == nil {
		t.Fatalf("expected error")
	}
}
