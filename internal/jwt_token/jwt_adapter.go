package jwttoken

import (
	"certledger/internal/platform/middleware"
)

// JWTServiceAdapter exposes the service through the middleware's validator
// contract so the middleware package stays free of JWT details.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.OperatorClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.OperatorClaims{Operator: claims.Operator, TokenID: claims.ID}, nil
}
