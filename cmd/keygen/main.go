package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"log"
	"os"
	"path/filepath"
)

// keygen writes a fresh Ed25519 keypair in the PEM layout the gateway
// expects: PKCS#8 private key for signing, PKIX public key for verification.
func main() {
	outDir := flag.String("out", "keys", "directory to write signing.pem and signing.pub.pem into")
	flag.Parse()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate keypair: %v", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		log.Fatalf("Failed to marshal private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		log.Fatalf("Failed to marshal public key: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		log.Fatalf("Failed to create %s: %v", *outDir, err)
	}

	privPath := filepath.Join(*outDir, "signing.pem")
	pubPath := filepath.Join(*outDir, "signing.pub.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		log.Fatalf("Failed to write %s: %v", privPath, err)
	}

	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", pubPath, err)
	}

	log.Printf("Wrote %s and %s", privPath, pubPath)
}
