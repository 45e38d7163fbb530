package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func (i *Issuer) IssueRefreshToken(userID, tokenID string) (string, time.Time, error) {
	rc, exp := i.registered(userID, tokenID, i.cfg.RefreshTTL)
	claims := RefreshClaims{
		UserID:           userID,
		TokenID:          tokenID,
		Type:             TypeRefresh,
		RegisteredClaims: rc,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (i *Issuer) VerifyRefreshToken(tokenStr string) (*RefreshClaims, error) {
	var claims RefreshClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return i.cfg.RefreshSecret, nil
	}, i.parserOptions()...)
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TypeRefresh || claims.UserID == "" || claims.TokenID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
