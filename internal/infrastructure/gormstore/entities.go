package gormstore

// Entities keep times as Unix nanoseconds in plain int64 columns. Field names
// avoid CreatedAt/UpdatedAt so gorm's auto-timestamping stays out of the way.

type registerEntity struct {
	ID            string `gorm:"type:varchar(64);primaryKey"`
	Name          string `gorm:"type:varchar(64);not null"`
	TenantID      string `gorm:"type:varchar(64);not null;index:idx_registers_tenant,priority:1"`
	Height        uint64 `gorm:"not null;default:0"`
	Status        string `gorm:"type:varchar(20);not null"`
	Advertise     bool
	IsFullReplica bool
	CreatedNanos  int64 `gorm:"column:created_at;not null;index:idx_registers_tenant,priority:2"`
	UpdatedNanos  int64 `gorm:"column:updated_at;not null"`
}

func (registerEntity) TableName() string { return "registers" }

type transactionEntity struct {
	RegisterID     string  `gorm:"type:varchar(64);primaryKey;index:idx_tx_time,priority:1;index:idx_tx_sender,priority:1;index:idx_tx_prev,priority:1;index:idx_tx_blueprint,priority:1;index:idx_tx_block,priority:1"`
	TxID           string  `gorm:"type:varchar(64);primaryKey;index:idx_tx_time,priority:3"`
	ID             string  `gorm:"type:varchar(255);not null"`
	PrevTxID       string  `gorm:"type:varchar(64);not null;default:'';index:idx_tx_prev,priority:2"`
	Version        uint32  `gorm:"not null"`
	SenderWallet   string  `gorm:"type:varchar(255);not null;index:idx_tx_sender,priority:2"`
	Signature      string  `gorm:"type:text;not null"`
	TimestampNanos int64   `gorm:"column:issued_at;not null;index:idx_tx_time,priority:2"`
	PayloadCount   uint64  `gorm:"not null"`
	MetaData       *string `gorm:"column:metadata;type:text"`
	BlueprintID    *string `gorm:"type:varchar(255);index:idx_tx_blueprint,priority:2"`
	InstanceID     *string `gorm:"type:varchar(255);index:idx_tx_blueprint,priority:3"`
	BlockNumber    *uint64 `gorm:"index:idx_tx_block,priority:2"`
	TxContext      string  `gorm:"type:text;not null"`
	TxType         string  `gorm:"type:varchar(64);not null"`
}

func (transactionEntity) TableName() string { return "transactions" }

type recipientEntity struct {
	RegisterID string `gorm:"type:varchar(64);primaryKey;index:idx_recipient_wallet,priority:1"`
	TxID       string `gorm:"type:varchar(64);primaryKey"`
	Position   int    `gorm:"primaryKey;autoIncrement:false"`
	Wallet     string `gorm:"type:varchar(255);not null;index:idx_recipient_wallet,priority:2"`
}

func (recipientEntity) TableName() string { return "transaction_recipients" }

type payloadEntity struct {
	RegisterID   string `gorm:"type:varchar(64);primaryKey"`
	TxID         string `gorm:"type:varchar(64);primaryKey"`
	Position     int    `gorm:"primaryKey;autoIncrement:false"`
	Hash         string `gorm:"type:varchar(255);not null"`
	Data         string `gorm:"type:longtext;not null"`
	WalletAccess string `gorm:"type:text;not null"`
	PayloadSize  uint64 `gorm:"not null"`
}

func (payloadEntity) TableName() string { return "transaction_payloads" }

type docketEntity struct {
	RegisterID     string `gorm:"type:varchar(64);primaryKey;index:idx_docket_state,priority:1"`
	ID             uint64 `gorm:"primaryKey;autoIncrement:false;index:idx_docket_state,priority:3"`
	TransactionIDs string `gorm:"type:longtext;not null"`
	PreviousHash   string `gorm:"type:varchar(64);not null"`
	Hash           string `gorm:"type:varchar(64);not null"`
	State          string `gorm:"type:varchar(20);not null;index:idx_docket_state,priority:2"`
	TimeStampNanos int64  `gorm:"column:timestamp_nanos;not null"`
}

func (docketEntity) TableName() string { return "dockets" }

// entities lists every table AutoMigrate manages.
var entities = []any{
	&registerEntity{},
	&transactionEntity{},
	&recipientEntity{},
	&payloadEntity{},
	&docketEntity{},
}
