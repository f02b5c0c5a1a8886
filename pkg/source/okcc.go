package source

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/phone"
)

const okccQuery = `SELECT caller, callee, start_time, record_file, type
FROM tbl_cdr_voice_nature
WHERE start_time >= ? AND start_time <= ? AND record_file != '' AND customer_id = ?`

// okccInbound is the call type of customer-initiated calls.
const okccInbound = 2

type okccRow struct {
	Caller     string
	Callee     string
	StartTime  int64
	RecordFile string
	Type       int
}

// OkccCDR reads the call center's MySQL CDR table for one project and copies
// the recordings from the call center's file share.
type OkccCDR struct {
	cfg  config.OkccSource
	open func(dsn string) (*sql.DB, error)
}

func NewOkccCDR(cfg config.OkccSource) *OkccCDR {
	return &OkccCDR{cfg: cfg, open: openMySQL}
}

func openMySQL(dsn string) (*sql.DB, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	c.Loc = time.Local
	connector, err := mysql.NewConnector(c)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

func (o *OkccCDR) Name() string {
	return constant.OriginOkcc.String()
}

func (o *OkccCDR) Fetch(ctx context.Context, w Window) ([]dto.RawRecording, error) {
	db, err := o.open(o.cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	rows, err := db.QueryContext(ctx, okccQuery, w.Start.Unix(), w.End.Unix(), o.cfg.CustomerId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cdrs []okccRow
	for rows.Next() {
		var r okccRow
		if err := rows.Scan(&r.Caller, &r.Callee, &r.StartTime, &r.RecordFile, &r.Type); err != nil {
			return nil, err
		}
		cdrs = append(cdrs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []dto.RawRecording
	var errs []error
	copies := 0
	for _, r := range cdrs {
		rec, src := mapOkccRow(r, o.cfg.ShareRoot)
		dir, copied, err := copyIntoArchive(o.cfg.ArchiveRoot, rec.CallTime, src, rec.Filename)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if copied {
			copies++
		}
		rec.SourcePath = dir
		out = append(out, rec)
	}

	zerolog.Ctx(ctx).Info().Str("origin", o.Name()).Int("rows", len(cdrs)).Int("offered", len(out)).Int("copied", copies).Msg("okcc cdr finished")
	return out, errors.Join(errs...)
}

// mapOkccRow takes the caller for inbound calls and the callee otherwise.
// record_file is relative to the share and carries no extension.
func mapOkccRow(r okccRow, shareRoot string) (dto.RawRecording, string) {
	number := r.Callee
	if r.Type == okccInbound {
		number = r.Caller
	}
	src := filepath.Join(shareRoot, filepath.FromSlash(r.RecordFile+".mp3"))
	return dto.RawRecording{
		Filename:      strings.ReplaceAll(filepath.Base(src), "-", "_"),
		CallTime:      time.Unix(r.StartTime, 0).In(time.Local),
		ContactNumber: phone.Normalize(number),
		Origin:        constant.OriginOkcc,
	}, src
}
