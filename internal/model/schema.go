package model

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// ExtensionSettingsColumns 按插件名保存的设置
	ExtensionSettingsColumns = []*schema.Column{
		{Name: "plugin", Type: field.TypeString, Size: 128},
		{Name: "data", Type: field.TypeString, Size: 2147483647},
		{Name: "update_time", Type: field.TypeTime},
	}
	ExtensionSettingsTable = &schema.Table{
		Name:       "extension_settings",
		Columns:    ExtensionSettingsColumns,
		PrimaryKey: []*schema.Column{ExtensionSettingsColumns[0]},
	}

	// ChatMetadataColumns 按聊天、插件名保存的元数据
	ChatMetadataColumns = []*schema.Column{
		{Name: "chat_id", Type: field.TypeInt64},
		{Name: "plugin", Type: field.TypeString, Size: 128},
		{Name: "data", Type: field.TypeString, Size: 2147483647},
		{Name: "update_time", Type: field.TypeTime},
	}
	ChatMetadataTable = &schema.Table{
		Name:       "chat_metadata",
		Columns:    ChatMetadataColumns,
		PrimaryKey: []*schema.Column{ChatMetadataColumns[0], ChatMetadataColumns[1]},
	}

	// MessagesColumns 宿主聊天记录
	MessagesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "chat_id", Type: field.TypeInt64},
		{Name: "message_id", Type: field.TypeInt64, Default: 0},
		{Name: "role", Type: field.TypeString, Size: 16},
		{Name: "sender_name", Type: field.TypeString},
		{Name: "text", Type: field.TypeString, Size: 2147483647},
		{Name: "sent_at", Type: field.TypeTime},
		{Name: "create_time", Type: field.TypeTime},
	}
	MessagesTable = &schema.Table{
		Name:       "messages",
		Columns:    MessagesColumns,
		PrimaryKey: []*schema.Column{MessagesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "message_chat_id_id",
				Unique:  false,
				Columns: []*schema.Column{MessagesColumns[1], MessagesColumns[0]},
			},
			{
				Name:    "message_sent_at",
				Unique:  false,
				Columns: []*schema.Column{MessagesColumns[6]},
			},
		},
	}

	Tables = []*schema.Table{
		ExtensionSettingsTable,
		ChatMetadataTable,
		MessagesTable,
	}
)
