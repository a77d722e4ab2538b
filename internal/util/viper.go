package util

import (
	"strings"

	"github.com/spf13/viper"
)

// SetKeyValue sets an environment style key such as NAVQL_DATABASE_HOST on
// the matching config key, database.host here. Underscores are tried as
// separators left to right. It returns false when no config key matches.
func SetKeyValue(vi *viper.Viper, key string, value interface{}) bool {
	key = strings.TrimPrefix(key, "NAVQL_")

	uc := strings.Count(key, "_")
	k := strings.ToLower(key)

	if vi.Get(k) != nil {
		vi.Set(k, value)
		return true
	}

	for i := 0; i < uc; i++ {
		k = strings.Replace(k, "_", ".", 1)
		if vi.Get(k) != nil {
			vi.Set(k, value)
			return true
		}
	}

	return false
}
