// Package model holds the emulator's entities as plain Go structs.
// Repositories persist these; services mutate them; the wire package
// serializes them. No entity knows how it is stored or served.
package model

import "time"

type Project struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"displayName"`
	ProjectNumber int64     `json:"projectNumber"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ACL string

const (
	ACLPrivate    ACL = "private"
	ACLPublicRead ACL = "publicRead"
)

type LifecycleAction string

const (
	LifecycleDelete  LifecycleAction = "Delete"
	LifecycleArchive LifecycleAction = "Archive"
)

type LifecycleRule struct {
	Action  LifecycleAction `json:"action"`
	AgeDays int             `json:"ageDays"`
}

type LifecycleConfig struct {
	Rules []LifecycleRule `json:"rule"`
}

type NotificationConfig struct {
	ID               string   `json:"id"`
	WebhookURL       string   `json:"webhookUrl"`
	EventTypes       []string `json:"eventTypes,omitempty"`
	ObjectNamePrefix string   `json:"objectNamePrefix,omitempty"`
	PayloadFormat    string   `json:"payloadFormat"`
}

type CORSRule struct {
	Origin         []string `json:"origin"`
	Method         []string `json:"method"`
	ResponseHeader []string `json:"responseHeader"`
	MaxAgeSeconds  int      `json:"maxAgeSeconds"`
}

type Bucket struct {
	ID                  string               `json:"id"`
	ProjectID           string               `json:"projectId"`
	Name                string               `json:"name"`
	Location            string               `json:"location"`
	StorageClass        string               `json:"storageClass"`
	VersioningEnabled   bool                 `json:"versioningEnabled"`
	ACL                 ACL                  `json:"acl"`
	Labels              map[string]string    `json:"labels,omitempty"`
	Lifecycle           LifecycleConfig      `json:"lifecycle"`
	NotificationConfigs []NotificationConfig `json:"notificationConfigs,omitempty"`
	CORS                []CORSRule           `json:"cors,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// Object is the head record: at most one per (bucketId,name) has
// IsLatest=true && !Deleted.
type Object struct {
	ID              string            `json:"id"`
	BucketID        string            `json:"bucketId"`
	Name            string            `json:"name"`
	Generation      int64             `json:"generation"`
	Metageneration  int64             `json:"metageneration"`
	Size            int64             `json:"size"`
	ContentType     string            `json:"contentType"`
	MD5             string            `json:"md5"`
	CRC32C          string            `json:"crc32c"`
	StorageClass    string            `json:"storageClass"`
	ACL             ACL               `json:"acl"`
	FilePath        string            `json:"-"`
	IsLatest        bool              `json:"-"`
	Deleted         bool              `json:"-"`
	TimeCreated     time.Time         `json:"timeCreated"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	CustomMetadata  map[string]string `json:"metadata,omitempty"`
}

type ObjectVersion struct {
	ID             string            `json:"id"`
	BucketID       string            `json:"bucketId"`
	ObjectID       string            `json:"objectId"`
	Name           string            `json:"name"`
	Generation     int64             `json:"generation"`
	Metageneration int64             `json:"metageneration"`
	Size           int64             `json:"size"`
	ContentType    string            `json:"contentType"`
	MD5            string            `json:"md5"`
	CRC32C         string            `json:"crc32c"`
	StorageClass   string            `json:"storageClass"`
	FilePath       string            `json:"-"`
	CreatedAt      time.Time         `json:"createdAt"`
	Deleted        bool              `json:"-"`
	CustomMetadata map[string]string `json:"metadata,omitempty"`
}

type ResumableSession struct {
	SessionID     string    `json:"sessionId"`
	BucketID      string    `json:"bucketId"`
	ObjectName    string    `json:"objectName"`
	ContentType   string    `json:"contentType"`
	MetadataJSON  string    `json:"metadataJson"`
	CurrentOffset int64     `json:"currentOffset"`
	TotalSize     int64     `json:"totalSize"` // -1 == unknown
	TempPath      string    `json:"-"`
	IfGenMatch    *int64    `json:"-"`
	IfGenNotMatch *int64    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

type EventType string

const (
	EventObjectFinalize       EventType = "OBJECT_FINALIZE"
	EventObjectDelete         EventType = "OBJECT_DELETE"
	EventObjectMetadataUpdate EventType = "OBJECT_METADATA_UPDATE"
)

type ObjectEvent struct {
	EventID    string    `json:"eventId"`
	BucketName string    `json:"bucketName"`
	ObjectName string    `json:"objectName"`
	Generation int64     `json:"generation"`
	EventType  EventType `json:"eventType"`
	Payload    string    `json:"payload"`
	Delivered  bool      `json:"delivered"`
	CreatedAt  time.Time `json:"createdAt"`
}

// InstanceStatus is the compute state machine's closed set of states.
type InstanceStatus string

const (
	InstanceProvisioning InstanceStatus = "PROVISIONING"
	InstanceRunning      InstanceStatus = "RUNNING"
	InstanceStopping     InstanceStatus = "STOPPING"
	InstanceStopped      InstanceStatus = "STOPPED"
	InstanceTerminated   InstanceStatus = "TERMINATED"
)

type Instance struct {
	ID              string            `json:"id"`
	ProjectID       string            `json:"projectId"`
	Name            string            `json:"name"`
	Zone            string            `json:"zone"`
	MachineType     string            `json:"machineType"`
	Status          InstanceStatus    `json:"status"`
	ContainerHandle string            `json:"-"`
	InternalIP      string            `json:"internalIp"`
	ExternalIP      string            `json:"externalIp,omitempty"`
	NetworkRef      string            `json:"network"`
	SubnetRef       string            `json:"subnetwork"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type RoutingMode string

const (
	RoutingRegional RoutingMode = "REGIONAL"
	RoutingGlobal   RoutingMode = "GLOBAL"
)

type Network struct {
	ID               string      `json:"id"`
	ProjectID        string      `json:"projectId"`
	Name             string      `json:"name"`
	AutoCreateSubnets bool       `json:"autoCreateSubnetworks"`
	RoutingMode      RoutingMode `json:"routingMode"`
	MTU              int         `json:"mtu"`
	CreatedAt        time.Time   `json:"createdAt"`
}

type Subnetwork struct {
	ID                    string    `json:"id"`
	NetworkRef            string    `json:"network"`
	Name                  string    `json:"name"`
	Region                string    `json:"region"`
	CIDR                  string    `json:"ipCidrRange"`
	GatewayIP             string    `json:"gatewayAddress"`
	PrivateGoogleAccess   bool      `json:"privateIpGoogleAccess"`
	NextIPIndex           int       `json:"-"`
	CreatedAt             time.Time `json:"createdAt"`
}

type NetworkInterface struct {
	ID         string    `json:"id"`
	InstanceRef string   `json:"-"`
	NetworkRef string    `json:"network"`
	SubnetRef  string    `json:"subnetwork"`
	Name       string    `json:"name"` // nicN
	InternalIP string    `json:"networkIP"`
	NICIndex   int       `json:"-"`
	CreatedAt  time.Time `json:"-"`
}

type AddressStatus string

const (
	AddressReserved AddressStatus = "RESERVED"
	AddressInUse    AddressStatus = "IN_USE"
)

type NetworkTier string

const (
	TierPremium  NetworkTier = "PREMIUM"
	TierStandard NetworkTier = "STANDARD"
)

type Address struct {
	ID              string        `json:"id"`
	ProjectID       string        `json:"projectId"`
	Region          string        `json:"region"`
	Name            string        `json:"name,omitempty"`
	IP              string        `json:"address"`
	Type            string        `json:"addressType"` // EXTERNAL
	Status          AddressStatus `json:"status"`
	NetworkTier     NetworkTier   `json:"networkTier"`
	UserInstanceRef string        `json:"users,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

type ProtocolEntry struct {
	Protocol string   `json:"IPProtocol"`
	Ports    []string `json:"ports,omitempty"`
}

type Direction string

const (
	DirectionIngress Direction = "INGRESS"
	DirectionEgress  Direction = "EGRESS"
)

type FirewallAction string

const (
	FirewallAllow FirewallAction = "ALLOW"
	FirewallDeny  FirewallAction = "DENY"
)

type FirewallRule struct {
	ID         string          `json:"id"`
	NetworkRef string          `json:"network"`
	Name       string          `json:"name"`
	Priority   int             `json:"priority"`
	Direction  Direction       `json:"direction"`
	Action     FirewallAction  `json:"-"`
	Allowed    []ProtocolEntry `json:"allowed,omitempty"`
	Denied     []ProtocolEntry `json:"denied,omitempty"`
	SourceRanges []string      `json:"sourceRanges,omitempty"`
	DestRanges   []string      `json:"destinationRanges,omitempty"`
	SourceTags   []string      `json:"sourceTags,omitempty"`
	TargetTags   []string      `json:"targetTags,omitempty"`
	CreatedAt    time.Time     `json:"creationTimestamp"`
}

type Route struct {
	ID         string    `json:"id"`
	NetworkRef string    `json:"network"`
	Name       string    `json:"name"`
	DestRange  string    `json:"destRange"`
	Priority   int       `json:"priority"`
	NextHopType string   `json:"-"` // gateway|instance|ip|vpnTunnel|interconnect
	NextHop    string    `json:"nextHopGateway,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"creationTimestamp"`
}

type PeeringState string

const (
	PeeringActive   PeeringState = "ACTIVE"
	PeeringInactive PeeringState = "INACTIVE"
)

type VPCPeering struct {
	ID                   string       `json:"-"`
	NetworkRef           string       `json:"-"`
	Name                 string       `json:"name"`
	PeerNetworkRef       string       `json:"network"`
	State                PeeringState `json:"state"`
	AutoCreateRoutes     bool         `json:"autoCreateRoutes"`
	ExchangeSubnetRoutes bool         `json:"exchangeSubnetRoutes"`
	CreatedAt            time.Time    `json:"-"`
}

type Router struct {
	ID           string    `json:"id"`
	NetworkRef   string    `json:"network"`
	Name         string    `json:"name"`
	Region       string    `json:"region"`
	BGPAsn       uint32    `json:"bgpAsn"`
	KeepaliveSec int       `json:"keepaliveSec"`
	CreatedAt    time.Time `json:"creationTimestamp"`
}

type VPNTunnel struct {
	ID          string    `json:"id"`
	NetworkRef  string    `json:"network"`
	Name        string    `json:"name"`
	Region      string    `json:"region"`
	PeerIP      string    `json:"peerIp"`
	GatewayIP   string    `json:"-"` // synthetic fake gateway, metadata only
	CreatedAt   time.Time `json:"creationTimestamp"`
}

type ServiceAccount struct {
	Email       string    `json:"email"`
	ProjectID   string    `json:"projectId"`
	DisplayName string    `json:"displayName"`
	UniqueID    string    `json:"uniqueId"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ServiceAccountKey struct {
	ID                string    `json:"id"`
	ServiceAccountEmail string  `json:"-"`
	PrivateKeyData    string    `json:"privateKeyData"`
	KeyAlgorithm      string    `json:"keyAlgorithm"`
	ValidAfter        time.Time `json:"validAfterTime"`
	ValidBefore       time.Time `json:"validBeforeTime"`
	Disabled          bool      `json:"disabled"`
}

type Binding struct {
	Role      string                 `json:"role"`
	Members   []string               `json:"members"`
	Condition map[string]interface{} `json:"condition,omitempty"`
}

type IamPolicy struct {
	ResourceType string    `json:"-"`
	ResourceID   string    `json:"-"`
	Version      int       `json:"version"`
	ETag         string    `json:"etag"`
	Bindings     []Binding `json:"bindings"`
}

const (
	PrincipalAllUsers            = "allUsers"
	PrincipalAllAuthenticatedUsers = "allAuthenticatedUsers"
)
