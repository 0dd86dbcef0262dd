package platform

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

var ErrNoSession = errors.New("no platform session: set PLATFORM_SSID once")

type sessionFile struct {
	SSID    string `json:"ssid"`
	SavedAt string `json:"saved_at"`
}

// LoadSession: сессия с диска, иначе из env с сохранением на диск. Файл никогда не удаляется,
// рестарт процесса не требует повторной авторизации.
func LoadSession(path, envSSID string) (string, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var sf sessionFile
		if err := sonic.Unmarshal(raw, &sf); err != nil {
			return "", errors.Wrapf(err, "decode session file %s", path)
		}
		if sf.SSID != "" {
			return sf.SSID, nil
		}
	case !os.IsNotExist(err):
		return "", errors.Wrapf(err, "read session file %s", path)
	}

	envSSID = strings.TrimSpace(envSSID)
	if envSSID == "" {
		return "", ErrNoSession
	}
	if err := SaveSession(path, envSSID); err != nil {
		return "", err
	}
	return envSSID, nil
}

func SaveSession(path, ssid string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "session dir")
	}
	b, err := sonic.Marshal(sessionFile{SSID: ssid, SavedAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.Wrap(err, "write session")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename session")
}
