// Package flagx lets several loaders share one command line: each picks out
// only the flags it owns and parses them with its own flag.FlagSet.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs returns the subset of args made of allowed flags and their
// values, in their original order. Both "-c conf.json" and "--config=conf.json"
// forms are recognised; a separate value is taken only when it does not itself
// start with "-". The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		if name, _, hasValue := strings.Cut(arg, "="); hasValue {
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}
	return filtered
}

// ConfigPath extracts the JSON config file path given with -c or -config.
// It returns "" when neither flag is present.
func ConfigPath(args []string) string {
	return lookupString(args, "config", "c", "path to JSON config file")
}

// EnvFilePath extracts the dotenv file path given with -env-file.
func EnvFilePath(args []string) string {
	return lookupString(args, "env-file", "", "path to .env file")
}

func lookupString(args []string, long, short, usage string) string {
	var value string

	allowed := []string{"-" + long, "--" + long}
	fs := flag.NewFlagSet(long, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&value, long, "", usage)
	if short != "" {
		allowed = append(allowed, "-"+short, "--"+short)
		fs.StringVar(&value, short, "", usage+" (short)")
	}

	_ = fs.Parse(FilterArgs(args, allowed))
	return value
}
