package main

import (
	"github.com/spf13/pflag"
)

// bindFlag lets an explicitly set flag override the config file and environment.
func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
