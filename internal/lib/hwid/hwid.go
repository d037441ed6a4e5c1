// Package hwid стабильный идентификатор машины для привязки лицензии.
package hwid

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

var machineIDFiles = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// ID возвращает configured, если он задан, иначе хеш machine-id или имени хоста.
// Сырые идентификаторы наружу не уходят.
func ID(configured string) string {
	if configured != "" {
		return configured
	}
	return derive(machineIDFiles, os.Hostname)
}

func derive(files []string, hostname func() (string, error)) string {
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return digest(id)
		}
	}
	if name, err := hostname(); err == nil && name != "" {
		return digest("host:" + name)
	}
	return ""
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
