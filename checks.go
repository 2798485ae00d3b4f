package guestuser

// CheckVerifierChain validates the authentication wiring at startup. When
// guest users are enabled the chain must contain the guest verifier and it
// must be the last entry; anywhere else it would shadow password
// authentication for non-guests. The returned errors are configuration
// errors and should halt startup.
func CheckVerifierChain(chain *VerifierChain, cfg *Config) error {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	verifiers := chain.Verifiers()
	guestIndex := -1
	for i, verifier := range verifiers {
		if verifier.Method() == AuthMethodGuest {
			guestIndex = i
		}
	}

	if guestIndex == -1 {
		return ErrVerifierMissing
	}

	if guestIndex != len(verifiers)-1 {
		return ErrVerifierNotLast
	}

	return nil
}
