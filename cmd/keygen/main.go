// Command keygen writes an RSA key pair for signing access and refresh
// tokens. The private key is written as PKCS#1 PEM with mode 0600 and the
// public key as PKIX PEM.
//
//	keygen -out ./keys -bits 3072
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/tally/pkg/cryptox"
)

func main() {
	out := flag.String("out", ".", "directory to write private.pem and public.pem into")
	bits := flag.Int("bits", 2048, "RSA modulus size in bits")
	force := flag.Bool("force", false, "overwrite existing key files")
	flag.Parse()

	if err := run(*out, *bits, *force); err != nil {
		log.Fatalf("keygen: %v", err)
	}
}

func run(dir string, bits int, force bool) error {
	if bits < 2048 {
		return fmt.Errorf("refusing to generate a %d bit key; minimum is 2048", bits)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	privatePath := filepath.Join(dir, "private.pem")
	publicPath := filepath.Join(dir, "public.pem")
	if !force {
		for _, p := range []string{privatePath, publicPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s already exists (use -force to overwrite)", p)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}

	privatePEM, err := cryptox.GenerateRSAKey(bits)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	publicPEM, err := cryptox.EncodeRSAPublicKey(privatePEM)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	if err := os.WriteFile(privatePath, privatePEM, 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, publicPEM, 0644); err != nil { // #nosec G306 - public key
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Printf("wrote %s and %s\n", privatePath, publicPath)
	return nil
}
