package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"tgdispatch/internal/config"
)

// ErrTLSDisabled is returned when no certificate is configured and
// self-signed mode is off; callers serve plain HTTP.
var ErrTLSDisabled = errors.New("tls disabled")

// LoadTLSConfig builds the listener TLS config from TGD_TLS_CERT and
// TGD_TLS_KEY. With TGD_TLS_SELF_SIGNED=true and no files, an ephemeral
// certificate is generated.
func LoadTLSConfig() (*tls.Config, error) {
	certFile := strings.TrimSpace(os.Getenv("TGD_TLS_CERT"))
	keyFile := strings.TrimSpace(os.Getenv("TGD_TLS_KEY"))

	var cert tls.Certificate
	var err error
	switch {
	case certFile != "" && keyFile != "":
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
	case config.Bool("TGD_TLS_SELF_SIGNED", false):
		cert, err = selfSigned(config.String("TGD_TLS_HOSTNAME", "localhost"))
		if err != nil {
			return nil, fmt.Errorf("generate certificate: %w", err)
		}
	default:
		return nil, ErrTLSDisabled
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return &cert, nil
		},
	}, nil
}

func selfSigned(host string) (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: host, Organization: []string{"tgdispatch"}},
		DNSNames:              []string{host},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
