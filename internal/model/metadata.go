package model

import (
	"context"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type MetadataModel struct {
	drv *entsql.Driver
}

func NewMetadataModel(drv *entsql.Driver) *MetadataModel {
	return &MetadataModel{drv: drv}
}

// Get 读取指定聊天下插件元数据的原始 JSON
func (m *MetadataModel) Get(ctx context.Context, chatID int64, plugin string) (string, error) {
	query, args := builder().
		Select("data").
		From(builder().Table(ChatMetadataTable.Name)).
		Where(entsql.And(
			entsql.EQ("chat_id", chatID),
			entsql.EQ("plugin", plugin),
		)).
		Query()

	var rows entsql.Rows
	if err := m.drv.Query(ctx, query, args, &rows); err != nil {
		return "", err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", ErrNotFound
	}
	var data string
	if err := rows.Scan(&data); err != nil {
		return "", err
	}
	return data, nil
}

// Upsert 整体覆盖指定聊天下的插件元数据
func (m *MetadataModel) Upsert(ctx context.Context, chatID int64, plugin, data string) error {
	query, args := builder().
		Insert(ChatMetadataTable.Name).
		Columns("chat_id", "plugin", "data", "update_time").
		Values(chatID, plugin, data, time.Now()).
		OnConflict(
			entsql.ConflictColumns("chat_id", "plugin"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	var res entsql.Result
	return m.drv.Exec(ctx, query, args, &res)
}
