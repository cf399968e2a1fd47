package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record matches a code.
var ErrNotFound = errors.New("registry record not found")

// Partner is a sponsor as known by the ERP.
type Partner struct {
	ID   int64  `yaml:"id"`
	Ref  string `yaml:"ref"`
	Name string `yaml:"name"`
}

// Child is a sponsored beneficiary. Letters may carry either the global code
// or the country office local id.
type Child struct {
	ID      int64  `yaml:"id"`
	Code    string `yaml:"code"`
	LocalID string `yaml:"local_id"`
	Name    string `yaml:"name"`
}

// Registry resolves letter codes to partner and child records. Lookups are
// exact; when several records match, the one with the lowest id wins.
type Registry interface {
	FindPartnerByRef(ctx context.Context, ref string) (Partner, error)
	// FindChildByCode matches on code first and falls back to local id.
	FindChildByCode(ctx context.Context, code string) (Child, error)
}
