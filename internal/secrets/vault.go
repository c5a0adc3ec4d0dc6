package secrets

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/platform/logger"
)

// DirName is the directory under the data dir the vault exclusively owns.
const DirName = "secrets"

// Vault owns every file under <data>/secrets and the credential lifecycle
// operations (§3 "Ownership": "the Credential Vault exclusively owns files
// under secrets/").
type Vault struct {
	dir        string
	runtimeDir string
	bus        eventbus.Bus
	log        *logger.Logger
	client     *http.Client
	masterKey  *MasterKeyProvider
}

// runtimeDirName holds plaintext copies materialized from the encrypted
// vault files for container bind-mounting; still under the vault's own
// directory, never exposed outside it.
const runtimeDirName = ".runtime"

// New returns a Vault rooted at <dataDir>/secrets, creating it with 0700
// permissions if absent.
func New(dataDir string, bus eventbus.Bus, log *logger.Logger) (*Vault, error) {
	if log == nil {
		log = logger.Default()
	}
	dir := filepath.Join(dataDir, DirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	runtimeDir := filepath.Join(dir, runtimeDirName)
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return nil, err
	}
	masterKey, err := NewMasterKeyProvider(dir)
	if err != nil {
		return nil, err
	}
	return &Vault{
		dir:        dir,
		runtimeDir: runtimeDir,
		bus:        bus,
		log:        log,
		client:     &http.Client{Timeout: 10 * time.Second},
		masterKey:  masterKey,
	}, nil
}

// ConnectOpenAIKey validates and stores an OpenAI API key, optionally
// verifying it against the OpenAI API first.
func (v *Vault) ConnectOpenAIKey(ctx context.Context, key string, verify bool) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t\r\n") || len(key) < MinOpenAIKeyChars {
		return apierr.InvalidRequest("openai api key must be non-empty, whitespace-free, and at least %d characters", MinOpenAIKeyChars)
	}

	if verify {
		if err := v.verifyOpenAIKey(ctx, key); err != nil {
			return err
		}
	}

	content := fmt.Sprintf("%s=%q\n", openAIEnvKey, key)
	if err := v.writeSecure(openAIEnvFile, []byte(content)); err != nil {
		return apierr.Internal("write openai credential", err)
	}
	v.emitAuthChanged("openai_connected")
	return nil
}

// verifyOpenAIKey calls GET /v1/models; 401/403 is a user error, a
// transport failure is a service error, 200 is ok (§4.C).
func (v *Vault) verifyOpenAIKey(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.openai.com/v1/models", nil)
	if err != nil {
		return apierr.Internal("build verification request", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := v.client.Do(req)
	if err != nil {
		return apierr.Upstream("could not reach openai to verify key", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apierr.AuthFailed("openai rejected the provided key")
	case resp.StatusCode != http.StatusOK:
		return apierr.Upstream(fmt.Sprintf("openai verification returned status %d", resp.StatusCode), nil)
	}
	return nil
}

// DisconnectOpenAIKey removes the stored key.
func (v *Vault) DisconnectOpenAIKey() error {
	if err := v.remove(openAIEnvFile); err != nil {
		return apierr.Internal("remove openai credential", err)
	}
	v.emitAuthChanged("openai_disconnected")
	return nil
}

// ConnectGitHubSSHKey validates and stores a PEM-encoded SSH private key.
func (v *Vault) ConnectGitHubSSHKey(key string) error {
	if err := validatePEMKey(key); err != nil {
		return err
	}
	if err := v.writeSecure(githubSSHKeyFile, []byte(key)); err != nil {
		return apierr.Internal("write github ssh key", err)
	}
	v.emitAuthChanged("github_ssh_key_connected")
	return nil
}

var pemMarkerPattern = regexp.MustCompile(`-----BEGIN ([A-Z0-9 ]+)-----[\s\S]*-----END ([A-Z0-9 ]+)-----`)

func validatePEMKey(key string) error {
	if strings.ContainsRune(key, 0) {
		return apierr.InvalidRequest("ssh key must not contain NUL bytes")
	}
	if len(key) > MaxSSHKeyBytes {
		return apierr.InvalidRequest("ssh key exceeds maximum size of %d bytes", MaxSSHKeyBytes)
	}
	m := pemMarkerPattern.FindStringSubmatch(strings.TrimSpace(key))
	if m == nil {
		return apierr.InvalidRequest("ssh key must be a PEM block with matching BEGIN/END markers")
	}
	if m[1] != m[2] {
		return apierr.InvalidRequest("ssh key BEGIN/END markers do not match")
	}
	return nil
}

// DisconnectGitHubSSHKey removes the stored SSH key.
func (v *Vault) DisconnectGitHubSSHKey() error {
	if err := v.remove(githubSSHKeyFile); err != nil {
		return apierr.Internal("remove github ssh key", err)
	}
	v.emitAuthChanged("github_ssh_key_disconnected")
	return nil
}

// ConnectGitHubKnownHosts validates and stores a known_hosts file.
func (v *Vault) ConnectGitHubKnownHosts(data string) error {
	if strings.ContainsRune(data, 0) {
		return apierr.InvalidRequest("known_hosts must not contain NUL bytes")
	}
	if len(data) > MaxKnownHostsBytes {
		return apierr.InvalidRequest("known_hosts exceeds maximum size of %d bytes", MaxKnownHostsBytes)
	}
	normalized := strings.ReplaceAll(data, "\r\n", "\n")
	if err := v.writeSecure(githubKnownHostFile, []byte(normalized)); err != nil {
		return apierr.Internal("write github known_hosts", err)
	}
	v.emitAuthChanged("github_known_hosts_connected")
	return nil
}

// DisconnectGitHubKnownHosts removes the stored known_hosts file.
func (v *Vault) DisconnectGitHubKnownHosts() error {
	if err := v.remove(githubKnownHostFile); err != nil {
		return apierr.Internal("remove github known_hosts", err)
	}
	v.emitAuthChanged("github_known_hosts_disconnected")
	return nil
}

// HasCodexAuth reports whether the account-bound OAuth payload exists. The
// file itself is written by the container login flow, never by the hub
// (§4.C), so there is no ConnectCodexAuth.
func (v *Vault) HasCodexAuth() bool {
	_, err := os.Stat(filepath.Join(v.dir, codexAuthFile))
	return err == nil
}

// OpenAIKeyPath decrypts openai.env into the vault's runtime directory and
// returns that plaintext path, for passing to the launcher command vector,
// or "" if not connected.
func (v *Vault) OpenAIKeyPath() string {
	return v.materializePath(openAIEnvFile)
}

// SSHKeyPath decrypts the stored SSH key into the vault's runtime directory
// and returns that plaintext path, or "" if absent.
func (v *Vault) SSHKeyPath() string {
	return v.materializePath(githubSSHKeyFile)
}

// KnownHostsPath decrypts the stored known_hosts file into the vault's
// runtime directory and returns that plaintext path, or "" if absent.
func (v *Vault) KnownHostsPath() string {
	return v.materializePath(githubKnownHostFile)
}

// materializePath decrypts an on-disk envelope into a 0600 plaintext file
// under the vault's runtime directory, for bind-mounting into containers
// that expect a real env/PEM file rather than the {nonce, ciphertext}
// envelope writeSecure persists.
func (v *Vault) materializePath(name string) string {
	data, err := v.readSecure(name)
	if err != nil {
		return ""
	}
	runtimePath := filepath.Join(v.runtimeDir, name)
	if err := os.WriteFile(runtimePath, data, 0o600); err != nil {
		return ""
	}
	return runtimePath
}

// HasOpenAIKey reports whether an OpenAI key is currently stored.
func (v *Vault) HasOpenAIKey() bool {
	return v.OpenAIKeyPath() != ""
}

// OpenAIKeyValue reads back the stored key's raw value, used by the title
// pipeline's API-key auth path (§4.H).
func (v *Vault) OpenAIKeyValue() (string, bool) {
	data, err := v.readSecure(openAIEnvFile)
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(data))
	_, value, found := strings.Cut(line, "=")
	if !found {
		return "", false
	}
	return strings.Trim(value, "\""), true
}

// SSHKeyValue reads back the stored GitHub deploy key, used by the agent
// tools router's credential resolution (§4.G).
func (v *Vault) SSHKeyValue() (string, bool) {
	data, err := v.readSecure(githubSSHKeyFile)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// KnownHostsValue reads back the stored known_hosts file, used by the agent
// tools router's credential resolution (§4.G).
func (v *Vault) KnownHostsValue() (string, bool) {
	data, err := v.readSecure(githubKnownHostFile)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Statuses returns the masked status of every vault entry, served by
// GET /api/settings/auth.
func (v *Vault) Statuses() []Status {
	now := time.Now().UTC()
	out := make([]Status, 0, 4)

	if val, ok := v.OpenAIKeyValue(); ok {
		out = append(out, Status{Kind: KindOpenAIKey, Connected: true, Masked: maskSecret(val), UpdatedAt: v.modTime(openAIEnvFile)})
	} else {
		out = append(out, Status{Kind: KindOpenAIKey, Connected: false})
	}

	out = append(out, v.fileStatus(KindGitHubSSHKey, githubSSHKeyFile))
	out = append(out, v.fileStatus(KindGitHubKnownHost, githubKnownHostFile))

	out = append(out, Status{Kind: KindCodexAuth, Connected: v.HasCodexAuth(), UpdatedAt: now})
	return out
}

func (v *Vault) fileStatus(kind Kind, name string) Status {
	path := filepath.Join(v.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return Status{Kind: kind, Connected: false}
	}
	data, _ := v.readSecure(name)
	return Status{Kind: kind, Connected: true, Masked: maskSecret(strings.TrimSpace(string(data))), UpdatedAt: info.ModTime().UTC()}
}

func (v *Vault) modTime(name string) time.Time {
	info, err := os.Stat(filepath.Join(v.dir, name))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime().UTC()
}

// writeSecure seals data with the vault's master key and writes the
// resulting {nonce, ciphertext} envelope atomically via tmp-then-rename
// (§4.C "at-rest encryption").
func (v *Vault) writeSecure(name string, data []byte) error {
	ciphertext, nonce, err := Encrypt(data, v.masterKey.Key())
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", name, err)
	}
	envelope := make([]byte, 0, 1+len(nonce)+len(ciphertext))
	envelope = append(envelope, byte(len(nonce)))
	envelope = append(envelope, nonce...)
	envelope = append(envelope, ciphertext...)

	path := filepath.Join(v.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, envelope, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readSecure reads and opens an envelope written by writeSecure.
func (v *Vault) readSecure(name string) ([]byte, error) {
	envelope, err := os.ReadFile(filepath.Join(v.dir, name))
	if err != nil {
		return nil, err
	}
	if len(envelope) < 1 {
		return nil, fmt.Errorf("secrets: %s is empty", name)
	}
	nonceLen := int(envelope[0])
	if len(envelope) < 1+nonceLen {
		return nil, fmt.Errorf("secrets: %s is truncated", name)
	}
	nonce := envelope[1 : 1+nonceLen]
	ciphertext := envelope[1+nonceLen:]
	return Decrypt(ciphertext, nonce, v.masterKey.Key())
}

func (v *Vault) remove(name string) error {
	_ = os.Remove(filepath.Join(v.runtimeDir, name))
	err := os.Remove(filepath.Join(v.dir, name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (v *Vault) emitAuthChanged(reason string) {
	if v.bus == nil {
		return
	}
	v.bus.Publish(&eventbus.Event{
		Type:    eventbus.TypeAuthChanged,
		Payload: map[string]string{"reason": reason},
	})
}
