// Package hooks defines the interceptor contracts consulted around tool
// execution and an in-memory registry that runs them.
//
// BeforeTool hooks run before the policy scan and may veto a request or
// rewrite the tool name and arguments. AfterTool hooks run once the caller
// has executed the tool and see its result.
//
// # Mutation Semantics
//
// Every hook receives its own copy of the original request. Hooks never see
// each other's rewrites; the caller folds the returned mutations in pipeline
// order, with later hooks overriding earlier ones field by field.
//
// # Usage
//
//	reg := hooks.NewRegistry(logger)
//	reg.Register(hooks.BeforeTool, "block-prod", 100, hooks.HookFunc(
//	    func(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
//	        if strings.Contains(strings.Join(hc.Args, " "), "--prod") {
//	            return hooks.Veto("production targets are blocked"), nil
//	        }
//	        return hooks.Continue(), nil
//	    }))
package hooks
