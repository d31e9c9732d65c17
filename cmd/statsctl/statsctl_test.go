package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hvalfangst/csvstats/internal/auth"
)

func TestMintToken_AcceptedByValidator(t *testing.T) {
	const (
		secret   = "dev-secret"
		audience = "61b4a548-3979-48df-b2df-37dc4e5e0e02"
	)
	signed, err := mintToken(secret, audience, "", "tester", []string{"Csv.Writer"}, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	v, err := auth.NewValidator(audience, []string{"Csv.Writer"}, auth.WithHMACSecret(secret))
	if err != nil {
		t.Fatal(err)
	}
	claims, err := v.Validate(context.Background(), signed)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "tester" {
		t.Fatalf("Subject = %q", claims.Subject)
	}
}

func TestMintToken_Expired(t *testing.T) {
	signed, err := mintToken("s", "aud", "", "x", []string{"Csv.Writer"}, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	v, _ := auth.NewValidator("aud", []string{"Csv.Writer"}, auth.WithHMACSecret("s"))
	if _, err := v.Validate(context.Background(), signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestRunTransform(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(in, []byte("Gender,State,Experience,Income\nM,NY,5,50000\nF,CA,10,90000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	app := &cli.App{Writer: &out}
	set := flag.NewFlagSet("transform", flag.ContinueOnError)
	set.String("file", in, "")
	set.String("out", "", "")
	c := cli.NewContext(app, set, nil)
	c.Context = context.Background()

	if err := runTransform(c); err != nil {
		t.Fatalf("runTransform: %v", err)
	}
	for _, key := range []string{"gender_to_income_corr", "experience_to_income_corr", "state_to_income_corr"} {
		if !strings.Contains(out.String(), key) {
			t.Errorf("output missing %s:\n%s", key, out.String())
		}
	}
}
