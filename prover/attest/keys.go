// Copyright 2025 The attestor-go Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const (
	privateKeyPEMType = "PRIVATE KEY"
	publicKeyPEMType  = "PUBLIC KEY"
)

// LoadSigningKey reads a PKCS#8 PEM-encoded Ed25519 private key.
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key %q: %v", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("%q does not contain a %s PEM block", path, privateKeyPEMType)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key %q: %v", path, err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key %q is %T, want ed25519", path, parsed)
	}
	return key, nil
}

// LoadVerifyingKey reads a PKIX PEM-encoded Ed25519 public key.
func LoadVerifyingKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %q: %v", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != publicKeyPEMType {
		return nil, fmt.Errorf("%q does not contain a %s PEM block", path, publicKeyPEMType)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %q: %v", path, err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key %q is %T, want ed25519", path, parsed)
	}
	return key, nil
}

// GenerateKeyPair creates a fresh Ed25519 keypair and returns it PEM-encoded
// (PKCS#8 private, PKIX public).
func GenerateKeyPair() (privPEM, pubPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("key generation failed: %v", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %v", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: pubDER})
	return privPEM, pubPEM, nil
}
