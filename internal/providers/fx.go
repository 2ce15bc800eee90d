package providers

import (
	"github.com/smallbiznis/paydesk/internal/providers/email"
	"github.com/smallbiznis/paydesk/internal/providers/pdf"
	"github.com/smallbiznis/paydesk/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	sms.Module,
)
