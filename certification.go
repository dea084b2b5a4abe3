package nestzip

import (
	_ "crypto/sha256" // registers SHA-256 for digest validation
	_ "crypto/sha512" // registers SHA-384 and SHA-512 for digest validation
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/nestzip/internal/index"
	"github.com/meigma/nestzip/internal/manifest"
)

// Certification is the integrity metadata recorded for one entry.
type Certification struct {
	// Digests are the content digests listed in the entry's manifest
	// section.
	Digests []digest.Digest

	// Signers are the names of the signature files under META-INF/ that
	// cover the entry, without the .SF suffix.
	Signers []string
}

// digestAttributes maps manifest attribute names to digest algorithms.
var digestAttributes = map[string]digest.Algorithm{
	"SHA-256-Digest": digest.SHA256,
	"SHA-384-Digest": digest.SHA384,
	"SHA-512-Digest": digest.SHA512,
}

// Certification returns the integrity metadata recorded for e, or nil if
// the archive records none for it.
//
// The first call walks the whole archive once, reading the manifest and
// every signature file; later calls are served from memory.
func (a *Archive) Certification(e *Entry) (*Certification, error) {
	a.certOnce.Do(func() {
		a.certs, a.certErr = a.certify()
	})
	if a.certErr != nil {
		return nil, a.certErr
	}
	return a.certs[e.Position], nil
}

func (a *Archive) certify() (map[int]*Certification, error) {
	m, err := a.Manifest()
	if errors.Is(err, ErrNotFound) {
		return map[int]*Certification{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Signature files are found in the same pass that assigns positions, so
	// signers are attached once every file has been read.
	positions := make(map[string]int, a.idx.Len())
	signers := make(map[string][]string)
	for e, err := range a.Entries() {
		if err != nil {
			return nil, err
		}
		positions[e.Name] = e.Position
		if !isSignatureFile(e.Name) {
			continue
		}
		data, err := a.ReadEntry(e)
		if err != nil {
			return nil, err
		}
		sf, err := manifest.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s in %s: %w", e.Name, a.path, err)
		}
		signer := strings.TrimSuffix(path.Base(e.Name), ".SF")
		for _, name := range sf.Sections() {
			signers[name] = append(signers[name], signer)
		}
	}

	certs := make(map[int]*Certification)
	for _, name := range m.Sections() {
		p, ok := positions[name]
		if !ok {
			continue
		}
		section, _ := m.Section(name)
		c := &Certification{Digests: a.sectionDigests(name, section), Signers: signers[name]}
		if len(c.Digests) > 0 || len(c.Signers) > 0 {
			certs[p] = c
		}
	}
	for name, s := range signers {
		if p, ok := positions[name]; ok && certs[p] == nil {
			certs[p] = &Certification{Signers: s}
		}
	}
	a.cfg.log().Debug("certification loaded", "path", a.path, "entries", len(certs), "signed", a.Signed())
	return certs, nil
}

func (a *Archive) sectionDigests(name string, section *Attributes) []digest.Digest {
	var digests []digest.Digest
	for _, attr := range section.Names() {
		alg, ok := digestAttributes[attr]
		if !ok {
			continue
		}
		value, _ := section.Get(attr)
		d, err := parseDigest(alg, value)
		if err != nil {
			a.cfg.log().Debug("skipping manifest digest", "entry", name, "attribute", attr, "error", err)
			continue
		}
		digests = append(digests, d)
	}
	return digests
}

// parseDigest converts a base64 manifest digest into a validated digest.
func parseDigest(alg digest.Algorithm, value string) (digest.Digest, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("decode %s digest: %w", alg, err)
	}
	d := digest.NewDigestFromEncoded(alg, hex.EncodeToString(raw))
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

func isSignatureFile(name string) bool {
	return path.Dir(name)+"/" == index.MetaInfPrefix && strings.HasSuffix(name, ".SF")
}

// VerifyEntry streams e and checks its content against every digest the
// manifest records for it. It returns false without error when no digest is
// recorded, and ErrDigestMismatch when any digest differs.
func (a *Archive) VerifyEntry(e *Entry) (bool, error) {
	c, err := a.Certification(e)
	if err != nil {
		return false, err
	}
	if c == nil || len(c.Digests) == 0 {
		return false, nil
	}

	verifiers := make([]digest.Verifier, len(c.Digests))
	writers := make([]io.Writer, len(c.Digests))
	for i, d := range c.Digests {
		verifiers[i] = d.Verifier()
		writers[i] = verifiers[i]
	}
	rc, err := a.OpenEntry(e)
	if err != nil {
		return false, err
	}
	defer rc.Close()
	if _, err := io.Copy(io.MultiWriter(writers...), rc); err != nil {
		return false, err
	}
	for i, v := range verifiers {
		if !v.Verified() {
			return false, fmt.Errorf("%w: %s does not match %s", ErrDigestMismatch, e.Name, c.Digests[i])
		}
	}
	return true, nil
}
