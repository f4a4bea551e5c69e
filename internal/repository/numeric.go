package repository

import (
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// --- NUMERIC(78,0) conversion helpers ---

func numericFromBig(i *big.Int) pgtype.Numeric {
	if i == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(i), Valid: true}
}

func bigFromNumeric(n pgtype.Numeric) *big.Int {
	if !n.Valid || n.Int == nil {
		return new(big.Int)
	}
	v := new(big.Int).Set(n.Int)
	// Scale-0 columns still come back with a positive exponent when the
	// value has trailing zeros.
	if n.Exp > 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	}
	return v
}

func nullableBigFromNumeric(n pgtype.Numeric) *big.Int {
	if !n.Valid {
		return nil
	}
	return bigFromNumeric(n)
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}
