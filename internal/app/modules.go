package app

import (
	"github.com/insituflow/flume/internal/workspace"
	"github.com/insituflow/flume/modules/exprs"
	"github.com/insituflow/flume/modules/relay"
	"github.com/insituflow/flume/modules/transforms"
)

// coreModules is the definitive list of all modules that are compiled into
// the flume binary.
var coreModules = []workspace.Module{
	&exprs.Module{},
	&transforms.Module{},
	&relay.Module{},
}
