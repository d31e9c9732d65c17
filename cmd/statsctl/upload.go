package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2/clientcredentials"
)

func runUpload(c *cli.Context) error {
	body, err := os.ReadFile(c.Path("file"))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.Path("file"), err)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	client, err := uploadClient(ctx, c)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.String("url"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/csv")
	if token := c.String("token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return cli.Exit(fmt.Sprintf("%d %s", resp.StatusCode, msg), 1)
	}
	fmt.Fprintln(c.App.Writer, string(msg))
	return nil
}

// uploadClient returns an http.Client that authenticates with client
// credentials, or a plain client when a static token was given.
func uploadClient(ctx context.Context, c *cli.Context) (*http.Client, error) {
	if c.String("token") != "" {
		return http.DefaultClient, nil
	}
	if c.String("token-url") == "" || c.String("client-id") == "" {
		return nil, cli.Exit("either --token or --token-url and --client-id must be set", 2)
	}

	cfg := clientcredentials.Config{
		ClientID:     c.String("client-id"),
		ClientSecret: c.String("client-secret"),
		TokenURL:     c.String("token-url"),
		Scopes:       c.StringSlice("scope"),
	}
	return cfg.Client(ctx), nil
}
