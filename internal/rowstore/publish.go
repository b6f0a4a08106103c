package rowstore

import (
	"context"
	"time"

	"RescueDesk/internal/changefeed"
	"RescueDesk/internal/models"
	"RescueDesk/pkg/logger"

	"go.uber.org/zap"
)

// Publishing 写成功后把结果行回显到事件源，供没有 CDC 的部署使用
type Publishing struct {
	Store
	pub changefeed.Publisher
}

func WithPublisher(s Store, pub changefeed.Publisher) *Publishing {
	return &Publishing{Store: s, pub: pub}
}

func (p *Publishing) Update(ctx context.Context, table, id string, patch models.Row) (models.Row, error) {
	row, err := p.Store.Update(ctx, table, id, patch)
	if err == nil {
		p.publish(ctx, changefeed.Event{Table: table, Kind: changefeed.KindUpdate, New: row})
	}
	return row, err
}

func (p *Publishing) Insert(ctx context.Context, table string, row models.Row) (models.Row, error) {
	out, err := p.Store.Insert(ctx, table, row)
	if err == nil {
		p.publish(ctx, changefeed.Event{Table: table, Kind: changefeed.KindInsert, New: out})
	}
	return out, err
}

func (p *Publishing) publish(ctx context.Context, e changefeed.Event) {
	e.At = time.Now().UTC()
	if err := p.pub.Publish(ctx, e); err != nil {
		logger.Warn("publish write echo failed", zap.String("table", e.Table), zap.String("id", e.ID()), zap.Error(err))
	}
}
