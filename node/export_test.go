package node

// SetGenericOnly forces the generic update strategies in tests.
func SetGenericOnly(b bool) {
	genericOnly = b
}
