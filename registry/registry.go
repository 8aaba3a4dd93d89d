// Package registry federates scene graph replicas through etcd.
//
// Every replica publishes the ID of the subgraph it owns under
// /{namespace}/replicas/{name}, attached to a lease that is renewed while
// the process is alive. Peers discover each other through the same prefix
// and mirror every foreign replica into their store as a remote root node,
// which marks where a federated subgraph lives without linking it into the
// local graph.
//
//	client, err := registry.NewClient(registry.Config{Endpoints: []string{"localhost:2379"}})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	fed := registry.NewFederation(client, registry.Replica{Name: "arm"}, store)
//	go fed.Run(ctx)
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
)

const (
	// DefaultNamespace is the key prefix used when Config.Namespace is empty.
	DefaultNamespace = "rsg"

	// DefaultTTL is the lease time-to-live in seconds.
	DefaultTTL = 30

	// ReplicaAttribute names the replica on the remote root nodes created
	// by a Federation.
	ReplicaAttribute = "rsg:replica"
)

// Replica describes one registered scene graph replica.
type Replica struct {
	// Name identifies the replica, unique within a namespace.
	Name string `json:"name"`

	// RootID is the node that anchors the replica's subgraph. Empty means
	// the ID derived from Name, see RootFor.
	RootID id.ID `json:"root_id"`

	// Attributes are copied onto the remote root node peers create.
	Attributes types.Attributes `json:"attributes,omitempty"`

	// StartedAt is when this replica registered.
	StartedAt time.Time `json:"started_at"`
}

// RootFor returns the root ID a replica named name publishes by default.
// It is stable across restarts and distinct from the shared Root.
func RootFor(name string) id.ID {
	return id.FromName(id.Root, name)
}

// normalize fills defaults and validates r.
func (r Replica) normalize() (Replica, error) {
	if r.Name == "" {
		return r, errors.New("replica name is required")
	}
	if r.RootID.IsNil() {
		r.RootID = RootFor(r.Name)
	}
	if r.RootID.IsRoot() {
		return r, fmt.Errorf("replica %s cannot publish the shared root", r.Name)
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	return r, nil
}

// Config holds etcd connection settings.
type Config struct {
	// Endpoints is the list of etcd endpoints, e.g. ["localhost:2379"].
	Endpoints []string `yaml:"endpoints" json:"endpoints"`

	// Namespace is the key prefix. Default: DefaultNamespace.
	Namespace string `yaml:"namespace" json:"namespace"`

	// TTL is the lease time-to-live in seconds. Default: DefaultTTL.
	TTL int `yaml:"ttl" json:"ttl"`

	// DialTimeout bounds the initial connection. Default: 5s.
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// KeepAlive is the lease renewal interval. Default: TTL/3.
	KeepAlive time.Duration `yaml:"keep_alive" json:"keep_alive"`

	// TLS enables mutual TLS when set and enabled.
	TLS *TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig holds client certificate settings for etcd.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
	CAFile   string `yaml:"ca_file" json:"ca_file"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("registry endpoints cannot be empty")
	}
	if c.TTL < 0 {
		return fmt.Errorf("registry ttl must not be negative, got %d", c.TTL)
	}
	if t := c.TLS; t != nil && t.Enabled {
		switch {
		case t.CertFile == "":
			return errors.New("TLS cert file is required when TLS is enabled")
		case t.KeyFile == "":
			return errors.New("TLS key file is required when TLS is enabled")
		case t.CAFile == "":
			return errors.New("TLS CA file is required when TLS is enabled")
		}
	}
	return nil
}

// withDefaults returns a copy of c with zero fields defaulted.
func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = time.Duration(c.TTL) * time.Second / 3
	}
	return c
}
