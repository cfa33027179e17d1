package gatekeeper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/mafik/gatekeeperd/internal/dhcp"
	"github.com/mafik/gatekeeperd/internal/dns"
	"github.com/mafik/gatekeeperd/internal/nat"
	"github.com/mafik/gatekeeperd/internal/netconf"
	"github.com/mafik/gatekeeperd/internal/netfilter"
	"github.com/mafik/gatekeeperd/internal/nl80211"
	"github.com/mafik/gatekeeperd/internal/reactor"
	"github.com/mafik/gatekeeperd/internal/update"
	"github.com/mafik/gatekeeperd/internal/webui"
	"github.com/mafik/gatekeeperd/internal/wifi"
	"golang.org/x/sys/unix"
)

// sweepPeriod is how often the reactor timer walks every expirable
// registry (DHCP leases, DNS cache, WPA2 handshakes), matching spec.md §9's
// "one shared expiration queue" swept on a cadence rather than per-entry
// timers.
const sweepPeriod = time.Second

// webuiPort is the dashboard's bind port, LAN-only per spec.md §7.
const webuiPort = 1337

// Daemon holds every subsystem this process wires together and owns the
// startup/shutdown lifecycle. Grounded on original_source/src/gatekeeper.cc
// (the top-level wiring order: interfaces, then netfilter, then DHCP/DNS,
// then the optional AP, then the updater) and on the teacher's
// internal/home.homeContext (one struct holding every module, passed to
// itself rather than read back out of package globals).
type Daemon struct {
	cfg Config
	log *slog.Logger

	r *reactor.Reactor

	lan, wan netconf.Interface

	leases   *dhcp.LeaseTable
	dnsProxy *dns.Proxy
	natWorker *nat.Worker
	nfConn   *netfilter.Conn
	nl       *nl80211.Conn
	ap       *wifi.AccessPoint
	eapol    *wifi.Socket
	updater  *update.Updater
	updateCancel context.CancelFunc
	webServer *http.Server
	watcher  *netconf.Watcher

	natWG sync.WaitGroup

	shutdownOnce sync.Once
}

// Run builds and drives a Daemon until a terminating signal or a fatal
// startup error, returning the process exit code per spec.md §7 (0 on a
// clean shutdown, 1 on a startup failure or an unrecoverable reactor
// error).
func Run(cfg Config) int {
	base := newLogger()
	tail := webui.NewLogTail(base.Handler())
	log := slog.New(tail)

	d := &Daemon{cfg: cfg, log: log}

	if err := d.start(tail); err != nil {
		log.Error("startup failed", "error", err)
		d.shutdown()

		return 1
	}

	err := d.r.Loop()
	d.shutdown()
	if err != nil {
		log.Error("reactor loop exited", "error", err)

		return 1
	}

	log.Info("gatekeeperd exited cleanly")

	return 0
}

// start brings every subsystem up in dependency order, registering each
// reactor.Listener as it becomes ready. Any error here aborts the whole
// startup; start never partially commits state the caller can't tear back
// down via [Daemon.shutdown].
func (d *Daemon) start(tail *webui.LogTail) (err error) {
	d.r, err = reactor.New()
	if err != nil {
		return fmt.Errorf("creating reactor: %w", err)
	}

	d.wan, err = netconf.SelectWAN()
	if err != nil {
		return fmt.Errorf("selecting WAN interface: %w", err)
	}

	d.lan, err = netconf.SelectLAN(d.wan)
	if err != nil {
		return fmt.Errorf("selecting LAN interface: %w", err)
	}

	serverIP := d.cfg.LANNetwork.Addr().Next()
	if err = netconf.AssignAddress(d.lan.Name, netip.PrefixFrom(serverIP, d.cfg.LANNetwork.Bits())); err != nil {
		return fmt.Errorf("assigning LAN address: %w", err)
	}

	if err = netconf.EnableForwarding(d.wan.Name); err != nil {
		return fmt.Errorf("enabling forwarding on %s: %w", d.wan.Name, err)
	}

	wanIP, err := netconf.Address(d.wan)
	if err != nil {
		return fmt.Errorf("reading WAN address: %w", err)
	}

	sig, err := reactor.NewSignal(d.onSignal, int(unix.SIGINT), int(unix.SIGTERM), int(unix.SIGHUP))
	if err != nil {
		return fmt.Errorf("installing signal handler: %w", err)
	}
	if err = d.r.Add(sig); err != nil {
		return fmt.Errorf("registering signal handler: %w", err)
	}

	if err = d.startNetfilter(d.lan, wanIP, d.cfg.LANNetwork); err != nil {
		return err
	}

	if err = d.startDHCPandDNS(d.lan, serverIP); err != nil {
		return err
	}

	if err = d.startWifi(); err != nil {
		return err
	}

	d.startUpdater()

	if err = d.startWatcher(); err != nil {
		return err
	}

	sweep, err := reactor.NewTimer("expiry-sweep", sweepPeriod, d.onSweep)
	if err != nil {
		return fmt.Errorf("creating sweep timer: %w", err)
	}
	if err = d.r.Add(sweep); err != nil {
		return fmt.Errorf("registering sweep timer: %w", err)
	}

	d.webServer = d.startWebUI(tail, serverIP)

	d.log.Info("gatekeeperd started", "lan", d.lan.Name, "wan", d.wan.Name, "lan_net", d.cfg.LANNetwork)

	return nil
}

func (d *Daemon) startNetfilter(lan netconf.Interface, wanIP netip.Addr, lanNet netip.Prefix) (err error) {
	d.nfConn, err = netfilter.Dial(d.log)
	if err != nil {
		return fmt.Errorf("dialing netfilter: %w", err)
	}

	if err = d.nfConn.Setup(lan.Index, wanIP, lanNet); err != nil {
		return fmt.Errorf("installing nftables rules: %w", err)
	}

	if err = d.nfConn.Bind(); err != nil {
		return fmt.Errorf("binding nfqueue: %w", err)
	}

	d.natWorker = nat.NewWorker(d.nfConn, nat.Config{LANNetwork: lanNet, LANIP: lanNet.Addr().Next(), WANIP: wanIP}, d.log)
	d.natWG.Add(1)
	go d.natWorker.RunInGroup(&d.natWG)

	return nil
}

func (d *Daemon) startDHCPandDNS(lan netconf.Interface, serverIP netip.Addr) (err error) {
	var ethersEntries []netconf.EthersEntry
	if ethersEntries, err = netconf.ParseEthers("/etc/ethers"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading /etc/ethers: %w", err)
	}

	hosts, err := netconf.ParseHosts("/etc/hosts")
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading /etc/hosts: %w", err)
	}
	if hosts == nil {
		hosts = &netconf.HostsFile{ByName: map[string]netip.Addr{}}
	}

	d.leases = dhcp.NewLeaseTable()
	seedStableLeases(d.leases, ethersEntries, hosts)

	dhcpSrv, err := dhcp.Listen(dhcp.Config{
		LANIface:   lan.Name,
		LANIndex:   lan.Index,
		Network:    d.cfg.LANNetwork,
		ServerIP:   serverIP,
		DomainName: d.cfg.LocalDomain,
		OfferLease: 10 * time.Second,
		AckLease:   60 * time.Second,
		SetARP: func(iface string, ip netip.Addr, mac net.HardwareAddr) error {
			fd, sockErr := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
			if sockErr != nil {
				return sockErr
			}
			defer unix.Close(fd)

			return netconf.SetARP(fd, iface, ip, mac)
		},
	}, d.leases, d.log)
	if err != nil {
		return fmt.Errorf("starting DHCP server: %w", err)
	}
	if err = d.r.Add(dhcpSrv); err != nil {
		return fmt.Errorf("registering DHCP server: %w", err)
	}

	hostname, err := netconf.ReadHostname("/etc/hostname")
	if err != nil {
		hostname = "gatekeeper"
	}

	upstreams, err := netconf.ParseResolvConf("/etc/resolv.conf")
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading /etc/resolv.conf: %w", err)
	}

	static := dns.NewStaticTable(hosts.NonLoopback(), hostname, d.cfg.LocalDomain, serverIP)

	d.dnsProxy = dns.NewProxy(dns.Config{
		LANIface:  lan.Name,
		LANNet:    d.cfg.LANNetwork,
		ServerIP:  serverIP,
		Upstreams: upstreams,
		Static:    static,
	}, d.log)

	dnsClient, err := dns.ListenClient(d.dnsProxy)
	if err != nil {
		return fmt.Errorf("starting DNS client socket: %w", err)
	}

	dnsSrv, err := dns.ListenServer(d.dnsProxy, dnsClient)
	if err != nil {
		return fmt.Errorf("starting DNS server socket: %w", err)
	}

	if err = d.r.Add(dnsClient); err != nil {
		return fmt.Errorf("registering DNS client socket: %w", err)
	}
	if err = d.r.Add(dnsSrv); err != nil {
		return fmt.Errorf("registering DNS server socket: %w", err)
	}

	return nil
}

// seedStableLeases joins /etc/ethers against /etc/hosts to install
// non-expiring leases for every known device, per spec.md §4.6.
func seedStableLeases(leases *dhcp.LeaseTable, ethersEntries []netconf.EthersEntry, hosts *netconf.HostsFile) {
	for _, e := range ethersEntries {
		addr, ok := hosts.ByName[e.Hostname]
		if !ok {
			continue
		}

		leases.Put(&dhcp.Lease{
			ClientID: e.MAC.String(),
			Hostname: e.Hostname,
			IP:       addr,
			MAC:      []byte(e.MAC),
			Stable:   true,
		}, 0)
	}
}

func (d *Daemon) startWifi() (err error) {
	if d.cfg.WifiInterface == "" {
		return nil
	}

	d.nl, err = nl80211.Dial()
	if err != nil {
		return fmt.Errorf("dialing nl80211: %w", err)
	}

	if domain := d.cfg.RegulatoryDomain(); domain != "" {
		if regErr := d.nl.SetRegulatoryDomain(domain); regErr != nil {
			d.log.Warn("setting regulatory domain failed", "domain", domain, "error", regErr)
		}
	}

	d.ap, err = wifi.New(d.nl, wifi.Config{
		Interface: d.cfg.WifiInterface,
		SSID:      d.cfg.WifiSSID,
		Password:  d.cfg.WifiPassword,
	}, d.log)
	if err != nil {
		return fmt.Errorf("starting access point: %w", err)
	}

	d.eapol, err = wifi.OpenSocket()
	if err != nil {
		return fmt.Errorf("opening EAPOL socket: %w", err)
	}
	d.eapol.Bind(d.ap)
	if err = d.r.Add(d.eapol); err != nil {
		return fmt.Errorf("registering EAPOL socket: %w", err)
	}

	events, err := wifi.NewEvents(d.nl, d.log)
	if err != nil {
		return fmt.Errorf("joining nl80211 multicast group: %w", err)
	}
	events.Bind(d.ap)
	if err = d.r.Add(events); err != nil {
		return fmt.Errorf("registering nl80211 events: %w", err)
	}

	return nil
}

func (d *Daemon) startUpdater() {
	if d.cfg.NoAutoUpdate || d.cfg.UpdateURL == "" {
		return
	}

	pubKey, err := parsePublicKey(d.cfg.UpdatePublicKey)
	if err != nil {
		d.log.Warn("self-update disabled: invalid public key", "error", err)

		return
	}

	exePath, err := os.Executable()
	if err != nil {
		d.log.Warn("self-update disabled: locating executable", "error", err)

		return
	}

	d.updater = update.New(update.Config{
		Client:         defaultHTTPClient(),
		URL:            d.cfg.UpdateURL,
		PublicKey:      pubKey,
		CurrentVersion: d.cfg.CurrentVersion,
		ExePath:        exePath,
		Logger:         d.log,
	})

	var ctx context.Context
	ctx, d.updateCancel = context.WithCancel(context.Background())
	go d.updater.Run(ctx)
}

// startWatcher hot-reloads /etc/ethers and /etc/hosts into the DHCP lease
// table without a second writer touching reactor-owned state: fsnotify's
// own goroutine drains [netconf.Watcher] and folds the reload back in only
// via [reactor.EventFD.Signal], which defers the actual table mutation to
// [reactor.EventFD.OnRead] running on the reactor thread.
func (d *Daemon) startWatcher() (err error) {
	d.watcher, err = netconf.NewWatcher("/etc/ethers", "/etc/hosts")
	if err != nil {
		d.log.Warn("file watch disabled", "error", err)

		return nil
	}

	wake, err := reactor.NewEventFD("config-reload", d.reloadHostsAndEthers)
	if err != nil {
		return fmt.Errorf("creating config-reload eventfd: %w", err)
	}
	if err = d.r.Add(wake); err != nil {
		return fmt.Errorf("registering config-reload eventfd: %w", err)
	}

	netconf.LogErrors(d.watcher, d.log)

	go func() {
		for range d.watcher.Events() {
			_ = wake.Signal()
		}
	}()

	return nil
}

// reloadHostsAndEthers re-reads /etc/ethers and /etc/hosts and re-seeds the
// stable lease set. Runs on the reactor thread via [reactor.EventFD].
func (d *Daemon) reloadHostsAndEthers() error {
	ethersEntries, err := netconf.ParseEthers("/etc/ethers")
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reloading /etc/ethers: %w", err)
	}

	hosts, err := netconf.ParseHosts("/etc/hosts")
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reloading /etc/hosts: %w", err)
	}
	if hosts == nil {
		return nil
	}

	seedStableLeases(d.leases, ethersEntries, hosts)

	d.log.Info("reloaded /etc/ethers and /etc/hosts")

	return nil
}

func (d *Daemon) startWebUI(tail *webui.LogTail, serverIP netip.Addr) *http.Server {
	snap := webui.Snapshots{
		Leases: func() any { return d.leases.Snapshot() },
		DNS:    func() any { return d.dnsProxy.Cache().Snapshot() },
		NAT:    func() any { return d.natWorker.Table().Snapshot() },
	}

	srv := webui.NewServer(snap, tail)
	addr := fmt.Sprintf("%s:%d", serverIP, webuiPort)

	return webui.Listen(addr, srv, d.log)
}

// onSweep walks every expirable registry once per [sweepPeriod], matching
// spec.md §9's "one shared expiration queue" with deadline-ordered next-up
// lookups rather than one OS timer per entry.
func (d *Daemon) onSweep() error {
	now := time.Now()

	d.leases.ExpireNow(now)

	if d.dnsProxy != nil {
		d.dnsProxy.Cache().ExpireNow(now)
	}

	if d.ap != nil {
		d.ap.ExpireHandshakes(now)
	}

	return nil
}

// onSignal runs on the reactor thread in response to SIGINT/SIGTERM/SIGHUP:
// it tears every listener down so [reactor.Reactor.Loop] observes Len()
// reach zero and returns on its own, the cooperative-shutdown contract
// spec.md §7 describes.
func (d *Daemon) onSignal(sig int) error {
	d.log.Info("received signal, shutting down", "signal", sig)
	d.shutdown()

	return nil
}

// shutdown tears down every subsystem exactly once. Safe to call multiple
// times and from either the startup-failure path or the signal handler.
func (d *Daemon) shutdown() {
	d.shutdownOnce.Do(func() {
		if d.r != nil {
			for _, l := range d.r.Listeners() {
				_ = d.r.Del(l)
				if c, ok := l.(io.Closer); ok {
					_ = c.Close()
				}
			}
		}

		if d.natWorker != nil {
			d.natWorker.Stop()
		}
		// Closing the queue socket unblocks the worker's pending receive, so
		// the join below does not wait forever.
		if d.nfConn != nil {
			_ = d.nfConn.Close()
		}
		d.natWG.Wait()

		// The nftables table is removed over a fresh socket, since the queue
		// socket is already closed.
		if d.nfConn != nil {
			if c, dialErr := netfilter.Dial(d.log); dialErr == nil {
				_ = c.Teardown()
				_ = c.Close()
			}
		}

		if d.watcher != nil {
			_ = d.watcher.Close()
		}

		if d.nl != nil {
			_ = d.nl.Close()
		}

		if d.updateCancel != nil {
			d.updateCancel()
		}

		if d.webServer != nil {
			_ = d.webServer.Close()
		}
	})
}
