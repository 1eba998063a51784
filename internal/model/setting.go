package model

import (
	"context"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type SettingModel struct {
	drv *entsql.Driver
}

func NewSettingModel(drv *entsql.Driver) *SettingModel {
	return &SettingModel{drv: drv}
}

// Get 读取插件设置的原始 JSON
func (m *SettingModel) Get(ctx context.Context, plugin string) (string, error) {
	query, args := builder().
		Select("data").
		From(builder().Table(ExtensionSettingsTable.Name)).
		Where(entsql.EQ("plugin", plugin)).
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

// Upsert 写入插件设置，已存在则覆盖
func (m *SettingModel) Upsert(ctx context.Context, plugin, data string) error {
	query, args := builder().
		Insert(ExtensionSettingsTable.Name).
		Columns("plugin", "data", "update_time").
		Values(plugin, data, time.Now()).
		OnConflict(
			entsql.ConflictColumns("plugin"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	var res entsql.Result
	return m.drv.Exec(ctx, query, args, &res)
}
