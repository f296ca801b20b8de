package wire

// Request DTOs for POST/PUT bodies, field names matching the modeled
// provider. Separate from internal/model so wire-shape churn (e.g. an
// optional field the client omits) never leaks into the persisted entity
// shape.

type CreateProjectRequest struct {
	ProjectID   string `json:"projectId"`
	DisplayName string `json:"displayName,omitempty"`
}

type CreateBucketRequest struct {
	Name              string            `json:"name"`
	Location          string            `json:"location"`
	StorageClass      string            `json:"storageClass"`
	VersioningEnabled bool              `json:"versioning_enabled"`
	ACL               string            `json:"acl"`
	Labels            map[string]string `json:"labels,omitempty"`
}

type UpdateObjectMetadataRequest struct {
	ContentType    string            `json:"contentType,omitempty"`
	CustomMetadata map[string]string `json:"metadata,omitempty"`
}

type NetworkInterfaceRequest struct {
	Network    string `json:"network"`
	Subnetwork string `json:"subnetwork,omitempty"`
}

type RunInstanceRequest struct {
	Name              string                    `json:"name"`
	Zone              string                    `json:"zone"`
	MachineType       string                    `json:"machineType"`
	Image             string                    `json:"image,omitempty"`
	Metadata          map[string]string         `json:"metadata,omitempty"`
	Labels            map[string]string         `json:"labels,omitempty"`
	Tags              []string                  `json:"tags,omitempty"`
	NetworkInterfaces []NetworkInterfaceRequest `json:"networkInterfaces,omitempty"`
	AllocateExternal  bool                      `json:"allocateExternalIp,omitempty"`
}

type CreateNetworkRequest struct {
	Name              string `json:"name"`
	AutoCreateSubnets bool   `json:"autoCreateSubnetworks"`
	RoutingMode       string `json:"routingMode,omitempty"`
	MTU               int    `json:"mtu,omitempty"`
}

type CreateSubnetRequest struct {
	Name                string `json:"name"`
	Network             string `json:"network"`
	Region              string `json:"region"`
	IPCidrRange         string `json:"ipCidrRange"`
	PrivateGoogleAccess bool   `json:"privateIpGoogleAccess,omitempty"`
}

type CreateFirewallRequest struct {
	Name         string              `json:"name"`
	Network      string              `json:"network"`
	Priority     int                 `json:"priority"`
	Direction    string              `json:"direction"`
	Allowed      []ProtocolEntryWire `json:"allowed,omitempty"`
	Denied       []ProtocolEntryWire `json:"denied,omitempty"`
	SourceRanges []string            `json:"sourceRanges,omitempty"`
	DestRanges   []string            `json:"destinationRanges,omitempty"`
	SourceTags   []string            `json:"sourceTags,omitempty"`
	TargetTags   []string            `json:"targetTags,omitempty"`
}

type ProtocolEntryWire struct {
	Protocol string   `json:"IPProtocol"`
	Ports    []string `json:"ports,omitempty"`
}

type CreateRouteRequest struct {
	Name        string `json:"name"`
	Network     string `json:"network"`
	DestRange   string `json:"destRange"`
	Priority    int    `json:"priority"`
	NextHopType string `json:"nextHopType"`
	NextHop     string `json:"nextHopGateway,omitempty"`
}

type AddPeeringRequest struct {
	Name                 string `json:"name"`
	PeerNetwork          string `json:"peerNetwork"`
	AutoCreateRoutes     bool   `json:"autoCreateRoutes,omitempty"`
	ExchangeSubnetRoutes bool   `json:"exchangeSubnetRoutes,omitempty"`
}

type RouterBGPWire struct {
	Asn              uint32 `json:"asn"`
	KeepaliveInterval int   `json:"keepaliveInterval,omitempty"`
}

type CreateRouterRequest struct {
	Name    string        `json:"name"`
	Network string        `json:"network"`
	Region  string        `json:"region"`
	BGP     RouterBGPWire `json:"bgp"`
}

type CreateVPNTunnelRequest struct {
	Name    string `json:"name"`
	Network string `json:"network"`
	Region  string `json:"region"`
	PeerIP  string `json:"peerIp"`
}

type ReserveAddressRequest struct {
	Name        string `json:"name"`
	NetworkTier string `json:"networkTier,omitempty"`
}

type CreateServiceAccountRequest struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName,omitempty"`
}

type SetIamPolicyRequest struct {
	Policy struct {
		Bindings []BindingWire `json:"bindings"`
		ETag     string        `json:"etag,omitempty"`
	} `json:"policy"`
}

type BindingWire struct {
	Role    string   `json:"role"`
	Members []string `json:"members"`
}

type TestIamPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type TokenRequest struct {
	Principal string `json:"principal"`
	Scopes    []string `json:"scopes,omitempty"`
}

type RevokeTokenRequest struct {
	Token string `json:"token"`
}

type AddAccessConfigRequest struct {
	Name  string `json:"name,omitempty"`
	NatIP string `json:"natIP,omitempty"`
}

type RemovePeeringRequest struct {
	Name string `json:"name"`
}
