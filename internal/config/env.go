package config

import (
	"os"
	"strings"
)

// Server is the API process configuration, read from the environment.
type Server struct {
	Port string
	// Env is "production" or anything else; production switches gin to
	// release mode.
	Env        string
	RunLogPath string
	// SolverBinary overrides the HiGHS executable looked up on PATH.
	SolverBinary string
	// CORSOrigins lists allowed origins; empty allows any.
	CORSOrigins []string
}

func ServerFromEnv() Server {
	s := Server{
		Port:       os.Getenv("API_PORT"),
		Env:        os.Getenv("API_ENV"),
		RunLogPath: os.Getenv("RUNLOG_PATH"),

		SolverBinary: os.Getenv("HIGHS_BINARY"),
	}
	if s.Port == "" {
		s.Port = "8080"
	}
	if s.RunLogPath == "" {
		s.RunLogPath = "runs.db"
	}
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			s.CORSOrigins = append(s.CORSOrigins, o)
		}
	}
	return s
}

func (s Server) Production() bool { return s.Env == "production" }
