package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/phone"
)

const voipQuery = `SELECT caller_id_name, caller_id_number, destination_number, start_stamp, end_stamp, record_path, record_name
FROM v_xml_cdr
WHERE start_stamp >= $1 AND start_stamp < $2 AND caller_id_name = ANY($3)`

// voipRow is one row of the FusionPBX v_xml_cdr table.
type voipRow struct {
	CallerName   sql.NullString
	CallerNumber sql.NullString
	Destination  sql.NullString
	StartStamp   sql.NullTime
	EndStamp     sql.NullTime
	RecordPath   sql.NullString
	RecordName   sql.NullString
}

// VoipCDR reads call detail records from one or more FusionPBX hosts and
// copies the recordings from each host's file share.
type VoipCDR struct {
	cfg  config.VoipSource
	open func(dsn string) (*sql.DB, error)
}

func NewVoipCDR(cfg config.VoipSource) *VoipCDR {
	return &VoipCDR{
		cfg: cfg,
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
}

func (v *VoipCDR) Name() string {
	return constant.OriginVoip.String()
}

func (v *VoipCDR) Fetch(ctx context.Context, w Window) ([]dto.RawRecording, error) {
	var out []dto.RawRecording
	var errs []error
	for _, host := range v.cfg.Hosts {
		recs, err := v.fetchHost(ctx, host, w)
		out = append(out, recs...)
		if err != nil {
			errs = append(errs, fmt.Errorf("voip host %s: %w", host.ShareRoot, err))
		}
	}
	zerolog.Ctx(ctx).Info().Str("origin", v.Name()).Int("offered", len(out)).Int("errors", len(errs)).Msg("voip cdr finished")
	return out, errors.Join(errs...)
}

func (v *VoipCDR) fetchHost(ctx context.Context, host config.VoipHost, w Window) ([]dto.RawRecording, error) {
	db, err := v.open(host.DSN)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	rows, err := db.QueryContext(ctx, voipQuery, w.Start, w.End, pq.Array(v.cfg.Extensions))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cdrs []voipRow
	for rows.Next() {
		var r voipRow
		if err := rows.Scan(&r.CallerName, &r.CallerNumber, &r.Destination, &r.StartStamp, &r.EndStamp, &r.RecordPath, &r.RecordName); err != nil {
			return nil, err
		}
		cdrs = append(cdrs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().Str("host", host.ShareRoot).Int("rows", len(cdrs)).Msg("voip cdr rows read")

	var out []dto.RawRecording
	var errs []error
	copies := 0
	for _, r := range cdrs {
		rec, src, ok := mapVoipRow(r, host)
		if !ok {
			continue
		}
		dir, copied, err := copyIntoArchive(v.cfg.ArchiveRoot, rec.CallTime, src, rec.Filename)
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
	zerolog.Ctx(ctx).Debug().Str("host", host.ShareRoot).Int("offered", len(out)).Int("copied", copies).Msg("voip recordings archived")
	return out, errors.Join(errs...)
}

// mapVoipRow picks the customer side of the call: the destination when the
// extension dialled out under its own number, the caller otherwise. The
// recording lives at <share root>/<record_path without the server prefix>.
func mapVoipRow(r voipRow, host config.VoipHost) (dto.RawRecording, string, bool) {
	if !r.StartStamp.Valid || !r.RecordPath.Valid || r.RecordName.String == "" {
		return dto.RawRecording{}, "", false
	}

	number := r.CallerNumber.String
	if r.CallerName.String == r.CallerNumber.String {
		number = r.Destination.String
	}

	callTime := r.StartStamp.Time
	if r.EndStamp.Valid {
		callTime = r.EndStamp.Time
	}
	callTime = callTime.In(time.Local)

	rel := strings.TrimPrefix(r.RecordPath.String, host.PathPrefix)
	src := filepath.Join(host.ShareRoot, filepath.FromSlash(rel), r.RecordName.String)

	return dto.RawRecording{
		Filename:      r.RecordName.String,
		CallTime:      callTime,
		ContactNumber: phone.Normalize(number),
		Origin:        constant.OriginVoip,
	}, src, true
}
