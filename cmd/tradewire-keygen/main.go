// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// tradewire-keygen manages the Ed25519 keypair behind master API
// keys.
//
//	tradewire-keygen generate --private-key master.key --public-key master.pub
//	tradewire-keygen mint --private-key master.key --ttl 720h
//
// The relay daemon only ever sees the public key; minting happens
// offline with the private key.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/tradewire-project/tradewire/lib/apikey"
	"github.com/tradewire-project/tradewire/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: tradewire-keygen <generate|mint> [flags]")
	}

	switch os.Args[1] {
	case "generate":
		return runGenerate(os.Args[2:])
	case "mint":
		return runMint(os.Args[2:])
	case "--version":
		fmt.Printf("tradewire-keygen %s\n", version.Info())
		return nil
	default:
		return fmt.Errorf("unknown command %q (want generate or mint)", os.Args[1])
	}
}

func runGenerate(args []string) error {
	var privatePath, publicPath string
	flagSet := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	flagSet.StringVar(&privatePath, "private-key", "master.key", "output path for the private key")
	flagSet.StringVar(&publicPath, "public-key", "master.pub", "output path for the public key")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	public, private, err := apikey.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := apikey.SaveKeypair(privatePath, publicPath, private, public); err != nil {
		return err
	}
	fmt.Printf("wrote %s and %s\n", privatePath, publicPath)
	return nil
}

func runMint(args []string) error {
	var privatePath, keyID string
	var ttl time.Duration
	flagSet := pflag.NewFlagSet("mint", pflag.ContinueOnError)
	flagSet.StringVar(&privatePath, "private-key", "master.key", "path to the private key")
	flagSet.StringVar(&keyID, "id", "", "key identifier (default: random)")
	flagSet.DurationVar(&ttl, "ttl", 0, "key lifetime (0 means no expiry)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	private, err := apikey.LoadPrivateKey(privatePath)
	if err != nil {
		return err
	}
	if keyID == "" {
		keyID, err = apikey.NewID()
		if err != nil {
			return err
		}
	}

	now := time.Now()
	payload := apikey.Payload{ID: keyID, IssuedAt: now.Unix()}
	if ttl > 0 {
		payload.ExpiresAt = now.Add(ttl).Unix()
	}
	key, err := apikey.Mint(private, payload)
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}
