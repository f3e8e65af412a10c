// Package signing manages RSA keys and signs provenance manifests.
package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus"
)

const (
	PrivateKeyFile = "private.pem"
	PublicKeyFile  = "public.pem"
)

// KeyPair manages signing keys
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// GenerateKeyPair creates a new RSA key pair
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// SaveKeyPair saves the key pair to files
func (kp *KeyPair) SaveKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKeyFile, err := os.OpenFile(privateKeyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create private key file: %w", err)
	}
	defer privateKeyFile.Close()

	privateKeyPEM := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	}

	if err := pem.Encode(privateKeyFile, privateKeyPEM); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	publicKeyFile, err := os.Create(publicKeyPath)
	if err != nil {
		return fmt.Errorf("failed to create public key file: %w", err)
	}
	defer publicKeyFile.Close()

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}

	publicKeyPEM := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	}

	if err := pem.Encode(publicKeyFile, publicKeyPEM); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	return nil
}

// Sign signs m with the pair's private key
func (kp *KeyPair) Sign(m *types.Manifest) error {
	return SignManifest(m, kp.PrivateKey)
}

// LoadPrivateKey loads a private key from file
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return key, nil
}

// LoadPublicKey loads a public key from file
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaKey, nil
}

// signingDigest returns the raw bytes of m.ComputeHash
func signingDigest(m *types.Manifest) ([]byte, error) {
	sum, err := m.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash manifest: %w", err)
	}
	return hex.DecodeString(sum)
}

// SignManifest signs a manifest with a private key
func SignManifest(m *types.Manifest, privateKey *rsa.PrivateKey) error {
	hash, err := signingDigest(m)
	if err != nil {
		return err
	}

	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, hash)
	if err != nil {
		return fmt.Errorf("failed to sign manifest: %w", err)
	}

	m.Signature = base64.StdEncoding.EncodeToString(signature)
	return nil
}

// VerifyManifest verifies a manifest signature with a public key
func VerifyManifest(m *types.Manifest, publicKey *rsa.PublicKey) error {
	if m.Signature == "" {
		return types.ErrUnsigned
	}

	signature, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	hash, err := signingDigest(m)
	if err != nil {
		return err
	}

	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, hash, signature); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	return nil
}

// GetOrCreateKeys loads the key pair from keysDir, generating it on first use
func GetOrCreateKeys(keysDir string, log logrus.FieldLogger) (*KeyPair, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keys directory: %w", err)
	}

	privateKeyPath := filepath.Join(keysDir, PrivateKeyFile)
	publicKeyPath := filepath.Join(keysDir, PublicKeyFile)

	if _, err := os.Stat(privateKeyPath); err == nil {
		privateKey, err := LoadPrivateKey(privateKeyPath)
		if err != nil {
			return nil, err
		}
		return &KeyPair{
			PrivateKey: privateKey,
			PublicKey:  &privateKey.PublicKey,
		}, nil
	}

	log.WithField("dir", keysDir).Info("generating new signing keys")
	keyPair, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	if err := keyPair.SaveKeyPair(privateKeyPath, publicKeyPath); err != nil {
		return nil, err
	}

	return keyPair, nil
}
