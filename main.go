// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/modload/cmd/modload"

func main() {
	cmd.Execute()
}
