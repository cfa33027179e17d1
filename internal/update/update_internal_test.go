package update

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// signedImage builds a test ELF carrying versionStr and an Ed25519
// signature computed over the whole image with the signature descriptor
// zeroed, mirroring the elf-signer tool in original_source/src/elf_signer.cc.
func signedImage(t *testing.T, priv ed25519.PrivateKey, versionStr string) []byte {
	t.Helper()

	zeroSig := make([]byte, ed25519SignatureSize)
	image := buildTestELF(t, map[string][]byte{
		versionSectionName: append([]byte(versionStr), 0),
		sigSectionName:     zeroSig,
	})

	f, err := parseTestELF(t, image)
	require.NoError(t, err)
	_, sigOff, err := findNoteDesc(f, sigSectionName)
	require.NoError(t, err)
	f.Close()

	sig := ed25519.Sign(priv, image)
	copy(image[sigOff:sigOff+ed25519SignatureSize], sig)

	return image
}

func TestUpdaterCheckAcceptsValidNewerImage(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	image := signedImage(t, priv, "v2.0.0-0-cafe")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(image)
	}))
	defer srv.Close()

	u := New(Config{
		Client:         srv.Client(),
		URL:            srv.URL,
		PublicKey:      pub,
		CurrentVersion: "v1.0.0-0-beef",
	})

	res, err := u.Check(context.Background())
	require.NoError(t, err)
	require.True(t, res.Available)
	require.Equal(t, "v2.0.0-0-cafe", res.NewVersion)
}

func TestUpdaterCheckRejectsOlderImage(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	image := signedImage(t, priv, "v1.0.0-0-cafe")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(image)
	}))
	defer srv.Close()

	u := New(Config{
		Client:         srv.Client(),
		URL:            srv.URL,
		PublicKey:      pub,
		CurrentVersion: "v2.0.0-0-beef",
	})

	res, err := u.Check(context.Background())
	require.NoError(t, err)
	require.False(t, res.Available)
}

func TestUpdaterCheckRejectsBadSignature(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	image := signedImage(t, priv, "v2.0.0-0-cafe")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(image)
	}))
	defer srv.Close()

	u := New(Config{
		Client:         srv.Client(),
		URL:            srv.URL,
		PublicKey:      otherPub,
		CurrentVersion: "v1.0.0-0-beef",
	})

	_, err = u.Check(context.Background())
	require.Error(t, err)
}
