package config

import (
	"errors"
	"testing"

	"ringkv/internal/address"
)

func TestParseAddresses(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []address.Address
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []address.Address{},
		},
		{
			name:  "single address",
			input: "1:0",
			want:  []address.Address{address.New(1, 0)},
		},
		{
			name:  "multiple addresses",
			input: "1:7001,2:7002,3:7003",
			want: []address.Address{
				address.New(1, 7001),
				address.New(2, 7002),
				address.New(3, 7003),
			},
		},
		{
			name:  "with spaces",
			input: "1:7001 , 2:7002",
			want: []address.Address{
				address.New(1, 7001),
				address.New(2, 7002),
			},
		},
		{
			name:    "invalid format - no colon",
			input:   "1=7001",
			wantErr: true,
		},
		{
			name:    "invalid format - zero address",
			input:   "0:0",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddresses(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAddresses() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParseAddresses() length = %d, want %d", len(got), len(tt.want))
					return
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("ParseAddresses()[%d] = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	self := address.New(2, 0)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "missing self", mutate: func(c *Config) { c.Self = address.Address{} }, wantErr: ErrSelfRequired},
		{name: "missing introducer", mutate: func(c *Config) { c.Introducer = address.Address{} }, wantErr: ErrIntroducerRequired},
		{name: "remove not after fail", mutate: func(c *Config) { c.TRemove = c.TFail }, wantErr: ErrInvalidWindows},
		{name: "zero fanout", mutate: func(c *Config) { c.Fanout = 0 }, wantErr: ErrInvalidFanout},
		{name: "zero txn timeout", mutate: func(c *Config) { c.TxnTimeout = 0 }, wantErr: ErrInvalidTxnTimeout},
		{name: "negative join retry", mutate: func(c *Config) { c.JoinRetry = -1 }, wantErr: ErrInvalidJoinRetry},
		{name: "unknown hash", mutate: func(c *Config) { c.Hash = "md5" }, wantErr: ErrUnknownHash},
		{name: "xxhash", mutate: func(c *Config) { c.Hash = "xxhash" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(self)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsIntroducer(t *testing.T) {
	cfg := Default(address.New(1, 0))
	if !cfg.IsIntroducer() {
		t.Error("1:0 should be the default introducer")
	}

	cfg = Default(address.New(2, 0))
	if cfg.IsIntroducer() {
		t.Error("2:0 should not be the introducer")
	}
}
