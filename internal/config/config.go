package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	QRConfig
	SessionConfig
	AttendanceConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFile() string
}

type mainConfig struct {
	EnvVars
	QR
	Sessions
	Attendance
}

func New() Config {
	return mainConfig{}
}

// Load reads the given dotenv files (".env" when none are given) into the process
// environment and returns the env backed Config. Variables already set in the
// environment win over file values. A missing file is not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return New(), nil
}
