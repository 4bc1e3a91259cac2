package config

import (
	"fmt"
	"io/ioutil"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/hwbp-go/hwbp/pkg/hwbp"
)

// snapshotFile is the on-disk form of a debug register snapshot. Values
// are strings so that they can be written in hex.
type snapshotFile struct {
	DR0 string `yaml:"dr0,omitempty"`
	DR1 string `yaml:"dr1,omitempty"`
	DR2 string `yaml:"dr2,omitempty"`
	DR3 string `yaml:"dr3,omitempty"`
	DR6 string `yaml:"dr6,omitempty"`
	DR7 string `yaml:"dr7,omitempty"`
}

// ParseRegister parses a register value in any base accepted by
// strconv.ParseUint with base 0 (0x, 0o, 0b prefixes). The empty string
// is zero.
func ParseRegister(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 0, 64)
}

// UnmarshalSnapshot decodes a YAML snapshot.
func UnmarshalSnapshot(data []byte) (hwbp.Snapshot, error) {
	var f snapshotFile
	var s hwbp.Snapshot
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return s, fmt.Errorf("unable to decode snapshot: %v", err)
	}
	for _, reg := range []struct {
		name string
		src  string
		dst  *uint64
	}{
		{"dr0", f.DR0, &s.Addr[0]},
		{"dr1", f.DR1, &s.Addr[1]},
		{"dr2", f.DR2, &s.Addr[2]},
		{"dr3", f.DR3, &s.Addr[3]},
		{"dr6", f.DR6, &s.DR6},
		{"dr7", f.DR7, &s.DR7},
	} {
		v, err := ParseRegister(reg.src)
		if err != nil {
			return s, fmt.Errorf("invalid value for %s: %v", reg.name, err)
		}
		*reg.dst = v
	}
	return s, nil
}

// MarshalSnapshot encodes s as YAML with hex values.
func MarshalSnapshot(s hwbp.Snapshot) ([]byte, error) {
	hex := func(v uint64) string { return fmt.Sprintf("%#x", v) }
	return yaml.Marshal(snapshotFile{
		DR0: hex(s.Addr[0]),
		DR1: hex(s.Addr[1]),
		DR2: hex(s.Addr[2]),
		DR3: hex(s.Addr[3]),
		DR6: hex(s.DR6),
		DR7: hex(s.DR7),
	})
}

// LoadSnapshot reads a YAML snapshot from path.
func LoadSnapshot(path string) (hwbp.Snapshot, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return hwbp.Snapshot{}, err
	}
	return UnmarshalSnapshot(data)
}

// SaveSnapshot writes s to path as YAML.
func SaveSnapshot(path string, s hwbp.Snapshot) error {
	data, err := MarshalSnapshot(s)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0644)
}
