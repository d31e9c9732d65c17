package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/urfave/cli/v2"

	"github.com/hvalfangst/csvstats/internal/auth"
)

func runToken(c *cli.Context) error {
	signed, err := mintToken(
		c.String("secret"),
		c.String("audience"),
		c.String("issuer"),
		c.String("subject"),
		c.StringSlice("scope"),
		c.Duration("ttl"),
		time.Now(),
	)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, signed)
	return nil
}

func mintToken(secret, audience, issuer, subject string, scopes []string, ttl time.Duration, now time.Time) (string, error) {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
