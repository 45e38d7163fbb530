package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func (i *Issuer) IssueAccessToken(userID, email, role string) (string, time.Time, error) {
	rc, exp := i.registered(userID, "", i.cfg.AccessTTL)
	claims := AccessClaims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		Type:             TypeAccess,
		RegisteredClaims: rc,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (i *Issuer) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return i.cfg.AccessSecret, nil
	}, i.parserOptions()...)
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TypeAccess || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
