package models

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type Role string

const (
	Source      Role = "source"
	Destination Role = "destination"
)

var Roles = []Role{Source, Destination}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", errors.Newf("invalid role: %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	return r == Source || r == Destination
}

func (r Role) Counterpart() Role {
	if r == Source {
		return Destination
	}
	return Source
}

// Kind of event observed on this role.
func (r Role) Watches() EventKind {
	if r == Source {
		return Deposit
	}
	return Unwrap
}

// ContractEndpoint is the bridge contract of one role. It is not modified after load.
type ContractEndpoint struct {
	Role    Role
	RPCURL  string
	Address common.Address
	ABI     abi.ABI
}
