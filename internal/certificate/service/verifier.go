package service

import (
	"context"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	dErrors "certledger/pkg/domain-errors"
)

// VerifyGateway is the ledger query the verifier needs.
type VerifyGateway interface {
	Verify(ctx context.Context, id models.CertificateID) (bool, error)
}

// Verifier asks the ledger on every call. Results are never cached and a
// failed call is never reported as Invalid.
type Verifier struct {
	gateway VerifyGateway
}

func NewVerifier(gateway VerifyGateway) *Verifier {
	return &Verifier{gateway: gateway}
}

func (v *Verifier) Verify(ctx context.Context, id models.CertificateID) (models.Verdict, error) {
	if id == 0 {
		return models.Invalid, dErrors.New(dErrors.CodeValidation, "certificate id must be a positive integer")
	}
	ok, err := v.gateway.Verify(ctx, id)
	if err != nil {
		return models.Invalid, ledger.Classify(err, "verify certificate")
	}
	return models.Verdict(ok), nil
}
