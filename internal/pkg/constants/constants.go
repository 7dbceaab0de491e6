package constants

// Registered collaborator service names (Nacos).
const (
	IdentityService = "identity-service"
	CartService     = "cart-service"
	CatalogService  = "catalog-service"
	PaymentService  = "payment-service"
)

// Collaborator HTTP paths.
const (
	IdentityAddressPath = "/internal/addresses"
	IdentityUserPath    = "/internal/users"
	CartByUserPath      = "/internal/carts"
	CatalogProductPath  = "/internal/products"
	PaymentChargePath   = "/internal/charges"
	PaymentRefundPath   = "/internal/refunds"
)

// Kafka topics.
const (
	OrderCommandsTopic     = "order.commands"
	InventoryCommandsTopic = "inventory.commands"
	NotificationsTopic     = "notifications"
)

// Consumer group IDs.
const (
	OrderCommandsGroup     = "order-service"
	InventoryCommandsGroup = "inventory-service"
	PushGatewayGroupPrefix = "push-gateway-"
)
