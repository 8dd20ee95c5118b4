package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ENV             = "ENV"
	PORT            = "PORT"
	MONGODB_URI     = "MONGODB_URI"
	MYSQL_URI       = "MYSQL_URI"
	REDIS_URI       = "REDIS_URI"
	LARAVEL_API_URL = "LARAVEL_API_URL"

	KANBAN_PAGE_SIZE         = "KANBAN_PAGE_SIZE"
	KANBAN_CACHE_TTL_SECONDS = "KANBAN_CACHE_TTL_SECONDS"
	BATCH_MAX_REQUESTS       = "BATCH_MAX_REQUESTS"
	BATCH_CONCURRENCY        = "BATCH_CONCURRENCY"

	ENV_DEVELOPMENT = "development"
	ENV_HOMOLOG     = "homolog"
	ENV_RELEASE     = "production"
)

var requiredKeys = []string{ENV, PORT, MONGODB_URI, MYSQL_URI, REDIS_URI, LARAVEL_API_URL}

var optionalKeys = []string{KANBAN_PAGE_SIZE, KANBAN_CACHE_TTL_SECONDS, BATCH_MAX_REQUESTS, BATCH_CONCURRENCY}

var allowedEnvValues = []string{ENV_DEVELOPMENT, ENV_HOMOLOG, ENV_RELEASE}

// LoadEnvVariables reads .env from the working directory into the process
// environment. Without a .env file the process environment is validated as is.
// strict=false skips the required-key check (used by the in-memory demo).
func LoadEnvVariables(strict bool) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("[ENV] Erro ao obter o diretório de trabalho: %w", err)
	}

	return loadEnvFile(filepath.Join(workDir, ".env"), strict)
}

func loadEnvFile(filePath string, strict bool) error {
	values, err := godotenv.Read(filePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("[ENV] Erro ao ler o arquivo .env: %w", err)
	}

	allowedKeys := append(slices.Clone(requiredKeys), optionalKeys...)

	for key, value := range values {
		if !slices.Contains(allowedKeys, key) {
			return fmt.Errorf("[ENV] Chave '%s' não é permitida. Chaves permitidas: %s",
				key, strings.Join(allowedKeys, ", "))
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("[ENV] Erro ao definir variável de ambiente %s: %w", key, err)
		}
	}

	if env := os.Getenv(ENV); env != "" && !slices.Contains(allowedEnvValues, env) {
		return fmt.Errorf("[ENV] Valor inválido para ENV: %s. Valores permitidos: %s",
			env, strings.Join(allowedEnvValues, ", "))
	}

	if !strict {
		return nil
	}

	var missingKeys []string
	for _, key := range requiredKeys {
		if os.Getenv(key) == "" {
			missingKeys = append(missingKeys, key)
		}
	}

	if len(missingKeys) > 0 {
		return fmt.Errorf("[ENV] Variáveis de ambiente obrigatórias ausentes: %s",
			strings.Join(missingKeys, ", "))
	}

	return nil
}

// GetEnvInt returns the integer value of key, or def when it is unset or
// not a number.
func GetEnvInt(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}

	return parsed
}
