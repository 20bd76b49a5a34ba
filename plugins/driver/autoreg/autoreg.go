// Package autoreg loads OAuth driver plugins through side-effect imports.
//
// This package is imported once by the composition root so plugin packages can
// self-register drivers in init() using the public plugin contract package.
package autoreg

import (
	_ "oauthbridge.io/bridge/plugins/driver/example"
)
