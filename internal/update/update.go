package update

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"debug/elf"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/renameio/v2"
)

// checkPeriod is how often [Updater.Run]'s timer fires, matching the
// reference's default poll cadence for update.cc's Timer.
const checkPeriod = 8 * time.Hour

// Config bundles the updater's dependencies, passed in explicitly per
// spec.md §9.
type Config struct {
	// Client performs the HTTPS GET for the update image. Must not be nil.
	Client *http.Client

	// URL is the HTTPS endpoint serving the current release's ELF image.
	URL string

	// PublicKey verifies the Ed25519 signature embedded in the image.
	// Must be 32 bytes.
	PublicKey ed25519.PublicKey

	// CurrentVersion is this process's own version string, in the
	// `git describe --tags`-like format [ParseVersion] understands.
	CurrentVersion string

	// ExePath is the path of the running executable to replace, normally
	// the target of reading /proc/self/exe per spec.md §6.
	ExePath string

	Logger *slog.Logger
}

// Updater polls [Config.URL] for a newer, validly signed ELF image and
// replaces the running binary in place. Grounded on
// original_source/src/update.cc's global Start/Stop/Check state machine,
// adapted into a struct per spec.md §9 ("pass as an explicit context
// object ... rather than ambient globals").
type Updater struct {
	cfg Config
}

// New builds an Updater from cfg.
func New(cfg Config) *Updater {
	return &Updater{cfg: cfg}
}

// CheckResult describes the outcome of one [Updater.Check] call.
type CheckResult struct {
	Available  bool
	NewVersion string
	image      []byte
}

// Check downloads the image at cfg.URL, verifies its embedded version is
// newer than cfg.CurrentVersion and its Ed25519 signature is valid, and
// reports whether an update is available. It does not modify anything on
// disk; call [Updater.Apply] with the result to install it.
func (u *Updater) Check(ctx context.Context) (res CheckResult, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.URL, nil)
	if err != nil {
		return CheckResult{}, fmt.Errorf("update: building request: %w", err)
	}

	resp, err := u.cfg.Client.Do(req)
	if err != nil {
		return CheckResult{}, fmt.Errorf("update: GET %s: %w", u.cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{}, fmt.Errorf("update: GET %s: status %s", u.cfg.URL, resp.Status)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return CheckResult{}, fmt.Errorf("update: reading response body: %w", err)
	}

	newVersion, verifyErr := u.verify(image)
	if verifyErr != nil {
		return CheckResult{}, errors.Annotate(verifyErr, "update: verifying image: %w")
	}

	current := ParseVersion(u.cfg.CurrentVersion)
	if !IsUpdate(current, newVersion) {
		return CheckResult{Available: false}, nil
	}

	return CheckResult{
		Available:  true,
		NewVersion: fmt.Sprintf("v%d.%d.%d-%d-%s", newVersion.Major, newVersion.Minor, newVersion.Patch, newVersion.ExtraCommits, newVersion.Commit),
		image:      image,
	}, nil
}

// verify parses image as an ELF file, extracts its version and signature
// notes, and checks the signature against a copy of image with the
// signature descriptor's bytes zeroed, exactly as
// original_source/src/update.cc's OnCheckFinished does (the signature is
// computed over the file with its own slot blanked out).
func (u *Updater) verify(image []byte) (v Version, err error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return Version{}, fmt.Errorf("not a valid ELF file: %w", err)
	}
	defer f.Close()

	versionDesc, _, err := findNoteDesc(f, versionSectionName)
	if err != nil {
		return Version{}, fmt.Errorf("missing version information: %w", err)
	}
	v = ParseVersion(string(bytes.TrimRight(versionDesc, "\x00")))

	sigDesc, sigOff, err := findNoteDesc(f, sigSectionName)
	if err != nil {
		return Version{}, fmt.Errorf("missing signature: %w", err)
	}
	if len(sigDesc) != ed25519SignatureSize {
		return Version{}, fmt.Errorf("signature has wrong size %d", len(sigDesc))
	}

	signed := bytes.Clone(image)
	for i := range sigDesc {
		signed[sigOff+int64(i)] = 0
	}

	if !ed25519.Verify(u.cfg.PublicKey, signed, sigDesc) {
		return Version{}, errors.Error("signature verification failed")
	}

	return v, nil
}

// Apply atomically replaces cfg.ExePath with res.image and re-execs the
// process in place, mirroring update.cc's write-rename-execve sequence.
// preExec, if non-nil, runs immediately before the exec call so the caller
// can flush any in-memory state that needs to survive the restart.
func (u *Updater) Apply(res CheckResult, preExec func()) (err error) {
	if !res.Available {
		return errors.Error("update: Apply called without an available update")
	}

	pf, err := renameio.NewPendingFile(u.cfg.ExePath, renameio.WithPermissions(0o755))
	if err != nil {
		return fmt.Errorf("update: opening pending file: %w", err)
	}
	defer pf.Cleanup()

	if _, err = pf.Write(res.image); err != nil {
		return fmt.Errorf("update: writing new binary: %w", err)
	}

	if err = pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("update: replacing binary: %w", err)
	}

	if preExec != nil {
		preExec()
	}

	if err = syscall.Exec(u.cfg.ExePath, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("update: exec updated binary: %w", err)
	}

	return nil
}

// Run checks for updates every checkPeriod, applying and re-execing into
// any valid newer image found, until ctx is canceled. Errors from
// individual checks are logged and do not stop the loop, matching
// spec.md §7's "per-request errors don't touch other state" convention
// applied to the periodic update check.
func (u *Updater) Run(ctx context.Context) {
	ticker := time.NewTicker(checkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.checkAndApply(ctx)
		}
	}
}

func (u *Updater) checkAndApply(ctx context.Context) {
	res, err := u.Check(ctx)
	if err != nil {
		u.cfg.Logger.Warn("update check failed", "error", err)

		return
	}
	if !res.Available {
		return
	}

	u.cfg.Logger.Info("applying update", "version", res.NewVersion)
	if err = u.Apply(res, nil); err != nil {
		u.cfg.Logger.Error("applying update failed", "error", err)
	}
}
