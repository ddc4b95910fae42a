package config

import "sort"

// Config is a flat mapping of case configuration keys to their current values.
// Values are kept as strings; numeric keys are parsed at the point of use.
type Config map[string]string

// Well-known configuration keys consumed by the phase sequencer and the
// submission controller. Recipes may only override keys from this set.
const (
	KeyCase             = "CASE"
	KeyRunType          = "RUN_TYPE"
	KeyContinueRun      = "CONTINUE_RUN"
	KeyStopOption       = "STOP_OPTION"
	KeyStopN            = "STOP_N"
	KeyRestOption       = "REST_OPTION"
	KeyRestN            = "REST_N"
	KeyHistOption       = "HIST_OPTION"
	KeyHistN            = "HIST_N"
	KeyResubmit         = "RESUBMIT"
	KeyResubmitSetsCR   = "RESUBMIT_SETS_CONTINUE_RUN"
	KeyRunRefCase       = "RUN_REFCASE"
	KeyRunRefDate       = "RUN_REFDATE"
	KeyGetRefCase       = "GET_REFCASE"
	KeyNInst            = "NINST"
	KeyNTasks           = "NTASKS"
	KeyNThreads         = "NTHRDS"
	KeyRootPE           = "ROOTPE"
	KeyDoutS            = "DOUT_S"
	KeyBatchSystem      = "BATCH_SYSTEM"
	KeyExternalWorkflow = "EXTERNAL_WORKFLOW"
	KeyJobIDs           = "JOB_IDS"
	KeyBuildComplete    = "BUILD_COMPLETE"
)

var recognizedKeys = map[string]bool{
	KeyCase:             true,
	KeyRunType:          true,
	KeyContinueRun:      true,
	KeyStopOption:       true,
	KeyStopN:            true,
	KeyRestOption:       true,
	KeyRestN:            true,
	KeyHistOption:       true,
	KeyHistN:            true,
	KeyResubmit:         true,
	KeyResubmitSetsCR:   true,
	KeyRunRefCase:       true,
	KeyRunRefDate:       true,
	KeyGetRefCase:       true,
	KeyNInst:            true,
	KeyNTasks:           true,
	KeyNThreads:         true,
	KeyRootPE:           true,
	KeyDoutS:            true,
	KeyBatchSystem:      true,
	KeyExternalWorkflow: true,
	KeyJobIDs:           true,
	KeyBuildComplete:    true,
}

// IsRecognizedKey reports whether key is a configuration key the harness
// understands. Recipe loading rejects overrides of anything else.
func IsRecognizedKey(key string) bool {
	return recognizedKeys[key]
}

// RecognizedKeys returns the sorted set of known configuration keys.
func RecognizedKeys() []string {
	keys := make([]string, 0, len(recognizedKeys))
	for k := range recognizedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of the config.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// True reports whether the value stored under key is a truthy flag.
func (c Config) True(key string) bool {
	switch c[key] {
	case "TRUE", "true", "True", "1", "yes":
		return true
	}
	return false
}
