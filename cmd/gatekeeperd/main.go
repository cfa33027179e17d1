// Command gatekeeperd runs the gateway-router daemon: LAN interface
// configuration and NAT, DHCP, DNS, an optional WPA2-Personal access
// point, a status dashboard, and self-update.
package main

import (
	"os"

	"github.com/mafik/gatekeeperd/internal/gatekeeper"
)

func main() {
	os.Exit(gatekeeper.Run(gatekeeper.LoadConfig()))
}
